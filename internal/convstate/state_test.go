package convstate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCheckSlippageAcceptsWithinTolerance(t *testing.T) {
	pinned := decimal.NewFromInt(100)
	current := decimal.NewFromFloat(103)
	if err := CheckSlippage(pinned, current); err != nil {
		t.Fatalf("expected no error within tolerance, got %v", err)
	}
}

func TestCheckSlippageRejectsBeyondTolerance(t *testing.T) {
	pinned := decimal.NewFromInt(100)
	current := decimal.NewFromFloat(106)
	if err := CheckSlippage(pinned, current); err != ErrPriceMoved {
		t.Fatalf("expected ErrPriceMoved, got %v", err)
	}
}

func TestCheckSlippageIgnoresZeroPinned(t *testing.T) {
	if err := CheckSlippage(decimal.Zero, decimal.NewFromInt(5)); err != nil {
		t.Fatalf("expected no error when pinned is zero, got %v", err)
	}
}
