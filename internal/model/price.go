package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceSource string

const (
	PriceSourceWS   PriceSource = "ws"
	PriceSourceREST PriceSource = "rest"
)

// PriceCacheEntry lives in Redis, not in Postgres; this struct is the shape
// serialized into that cache (§3, §4.1).
type PriceCacheEntry struct {
	Symbol   string          `json:"symbol"`
	PriceUSD decimal.Decimal `json:"price_usd"`
	Ts       time.Time       `json:"ts"`
	Source   PriceSource     `json:"source"`
}

func (e PriceCacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.Ts)
}
