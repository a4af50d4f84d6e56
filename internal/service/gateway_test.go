package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
)

func TestGatewayFeeQRISIsZero(t *testing.T) {
	if !GatewayFee(model.PaymentMethodQRIS).IsZero() {
		t.Fatal("expected zero fee for QRIS")
	}
}

func TestGatewayFeeVAIsFlat(t *testing.T) {
	got := GatewayFee(model.PaymentMethodVA)
	if !got.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected 4000, got %s", got)
	}
}

func TestGatewayPaymentTypeMapping(t *testing.T) {
	if gatewayPaymentType(model.PaymentMethodVA) != "bank_transfer" {
		t.Fatal("expected bank_transfer for VA")
	}
	if gatewayPaymentType(model.PaymentMethodQRIS) != "qris" {
		t.Fatal("expected qris for QRIS")
	}
}
