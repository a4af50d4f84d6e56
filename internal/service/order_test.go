package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
)

func TestApplyVoucherDiscountSubtractsFlatValue(t *testing.T) {
	v := &model.Voucher{ValueIDR: decimal.NewFromInt(10000)}
	got := applyVoucherDiscount(decimal.NewFromInt(100000), v)
	if !got.Equal(decimal.NewFromInt(90000)) {
		t.Fatalf("expected 90000, got %s", got)
	}
}

func TestApplyVoucherDiscountFloorsAtZero(t *testing.T) {
	v := &model.Voucher{ValueIDR: decimal.NewFromInt(999999)}
	got := applyVoucherDiscount(decimal.NewFromInt(100000), v)
	if !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestIsGatewaySettledAcceptsSettlementWithoutFraudCheck(t *testing.T) {
	st := &GatewayStatus{TransactionStatus: "settlement"}
	if !isGatewaySettled(st) {
		t.Fatal("expected settlement to be treated as settled")
	}
}

func TestIsGatewaySettledRejectsCaptureWithFraud(t *testing.T) {
	st := &GatewayStatus{TransactionStatus: "capture", FraudStatus: "challenge"}
	if isGatewaySettled(st) {
		t.Fatal("expected capture+challenge to not be settled")
	}
}

func TestIsGatewaySettledRejectsPending(t *testing.T) {
	st := &GatewayStatus{TransactionStatus: "pending"}
	if isGatewaySettled(st) {
		t.Fatal("expected pending to not be settled")
	}
}
