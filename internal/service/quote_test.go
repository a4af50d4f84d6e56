package service

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeTokenAmountAppliesMarkup(t *testing.T) {
	amountIDR := decimal.NewFromInt(1_000_000)
	fxRate := decimal.NewFromInt(16000)
	priceUSD := decimal.NewFromInt(2)
	markup := decimal.NewFromInt(5)

	got := computeTokenAmount(amountIDR, fxRate, priceUSD, markup)

	// 1,000,000 / 16,000 / 2 = 31.25, * 0.95 = 29.6875
	want := decimal.NewFromFloat(29.6875)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestComputeTokenAmountZeroOnMissingRates(t *testing.T) {
	if !computeTokenAmount(decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(1), decimal.Zero).IsZero() {
		t.Fatal("expected zero when fx rate is zero")
	}
	if !computeTokenAmount(decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.Zero, decimal.Zero).IsZero() {
		t.Fatal("expected zero when price is zero")
	}
}
