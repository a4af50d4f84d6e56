// Package httputil holds the small boundary-layer conversions the HTTP
// handlers need before calling into internal/service: IDR amount parsing
// (§6 "External interfaces"). Wallet address normalization lives in
// internal/wallet. Nothing here touches the database or the wallet signer.
package httputil

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid IDR amount")

const maxAmountIDR = 1_000_000_000_000 // 10^12

var currencyPrefix = regexp.MustCompile(`(?i)^(rp\.?|idr)\s*`)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// ParseIDR accepts the formats named in §6: a plain integer, dot-separated
// thousands ("100.000"), comma-separated thousands ("100,000"), and an
// optional "Rp"/"IDR" prefix. When both a dot and a comma are present the
// dot is the thousands separator and the comma introduces a fractional
// part that is truncated, not rounded — "Rp 50.000,50" resolves to 50000.
func ParseIDR(input string) (int64, error) {
	s := strings.TrimSpace(input)
	s = currencyPrefix.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	hasDot := strings.Contains(s, ".")
	if idx := strings.LastIndex(s, ","); idx >= 0 {
		if hasDot {
			s = s[:idx]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	if hasDot {
		s = strings.ReplaceAll(s, ".", "")
	}

	if !digitsOnly.MatchString(s) {
		return 0, ErrInvalidAmount
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if n <= 0 || n > maxAmountIDR {
		return 0, ErrInvalidAmount
	}
	return n, nil
}
