package service

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
)

func TestVerifySignatureAcceptsMatching(t *testing.T) {
	s := &WebhookService{serverKey: "secret"}
	n := WebhookNotification{OrderID: "o1", StatusCode: "200", GrossAmount: "100000"}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + s.serverKey))
	n.SignatureKey = hex.EncodeToString(sum[:])
	if !s.VerifySignature(n) {
		t.Fatal("expected matching signature to verify")
	}
}

func TestVerifySignatureRejectsTampered(t *testing.T) {
	s := &WebhookService{serverKey: "secret"}
	n := WebhookNotification{OrderID: "o1", StatusCode: "200", GrossAmount: "100000", SignatureKey: "deadbeef"}
	if s.VerifySignature(n) {
		t.Fatal("expected tampered signature to fail")
	}
}

func TestClassifyTransactionSuccess(t *testing.T) {
	cases := []WebhookNotification{
		{TransactionStatus: "settlement"},
		{TransactionStatus: "paid"},
		{TransactionStatus: "capture", FraudStatus: "accept"},
	}
	for _, n := range cases {
		if classifyTransaction(n) != txOutcomeSuccess {
			t.Fatalf("expected success for %+v", n)
		}
	}
}

func TestClassifyTransactionFailed(t *testing.T) {
	for _, status := range []string{"deny", "cancel", "expire", "failure"} {
		n := WebhookNotification{TransactionStatus: status}
		if classifyTransaction(n) != txOutcomeFailed {
			t.Fatalf("expected failed for %s", status)
		}
	}
}

func TestClassifyTransactionCaptureWithoutAcceptIsPending(t *testing.T) {
	n := WebhookNotification{TransactionStatus: "capture", FraudStatus: "challenge"}
	if classifyTransaction(n) != txOutcomePending {
		t.Fatal("expected capture+challenge to be pending")
	}
}

func TestAmountWithinToleranceUsesPercentFloor(t *testing.T) {
	expected := decimal.NewFromInt(100000)
	if !amountWithinTolerance(expected, decimal.NewFromInt(100400)) {
		t.Fatal("expected 400 IDR drift on 100000 to be within 0.5% tolerance (500)")
	}
	if amountWithinTolerance(expected, decimal.NewFromInt(101000)) {
		t.Fatal("expected 1000 IDR drift to exceed 0.5% tolerance")
	}
}

func TestAmountWithinToleranceFloorsAt1000IDR(t *testing.T) {
	expected := decimal.NewFromInt(1000)
	if !amountWithinTolerance(expected, decimal.NewFromInt(1900)) {
		t.Fatal("expected 900 IDR drift on a tiny amount to be within the 1000 IDR floor")
	}
}

func TestExpectedAmountPrefersTotalPay(t *testing.T) {
	o := &model.Order{AmountIDR: decimal.NewFromInt(100000), TotalPay: decimal.NewFromInt(104000)}
	if !expectedAmount(o).Equal(decimal.NewFromInt(104000)) {
		t.Fatal("expected total_pay to take precedence")
	}
}

func TestExpectedAmountFallsBackToAmountIDR(t *testing.T) {
	o := &model.Order{AmountIDR: decimal.NewFromInt(100000)}
	if !expectedAmount(o).Equal(decimal.NewFromInt(100000)) {
		t.Fatal("expected amount_idr fallback when total_pay is zero")
	}
}
