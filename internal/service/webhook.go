package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
)

// WebhookNotification is the payment gateway's callback payload (§4.10).
type WebhookNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// WebhookService is the Webhook Reconciler (§4.10). Every path it takes
// after signature verification returns nil — amount mismatches, unknown
// orders, and already-settled orders are all logged and absorbed rather
// than surfaced, because the gateway must never be given a reason to retry
// (§4.10 step 6, §7 "fraud/mismatch").
type WebhookService struct {
	repo      *repository.Repository
	orders    *OrderService
	serverKey string
	log       *zap.Logger
}

func NewWebhookService(repo *repository.Repository, orders *OrderService, cfg config.GatewayConfig, log *zap.Logger) *WebhookService {
	return &WebhookService{repo: repo, orders: orders, serverKey: cfg.ServerKey, log: log}
}

// VerifySignature recomputes SHA-512(order_id || status_code || gross_amount || server_key)
// and compares it in constant time against the notification's signature_key,
// per this gateway's callback contract.
func (s *WebhookService) VerifySignature(n WebhookNotification) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + s.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// Handle implements §4.10 steps 2-6. Callers must reject on VerifySignature
// failure before calling Handle.
func (s *WebhookService) Handle(ctx context.Context, n WebhookNotification) error {
	order, err := s.repo.GetOrderByMidtransID(ctx, n.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("webhook: no order for midtrans id", zap.String("midtrans_id", n.OrderID))
		return nil
	}
	if err != nil {
		return err
	}

	grossAmount, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		s.log.Warn("webhook: unparseable gross_amount", zap.String("order_id", order.ID.String()), zap.String("gross_amount", n.GrossAmount))
		return nil
	}
	if !amountWithinTolerance(expectedAmount(order), grossAmount) {
		s.log.Error("webhook: amount mismatch, possible fraud",
			zap.String("order_id", order.ID.String()), zap.String("expected", expectedAmount(order).String()),
			zap.String("received", grossAmount.String()))
		return nil
	}

	if order.Status != model.OrderStatusPending {
		return nil
	}

	switch classifyTransaction(n) {
	case txOutcomeSuccess:
		return s.orders.HandlePaymentSuccess(ctx, order.ID)
	case txOutcomeFailed:
		return s.orders.CancelOrder(ctx, order.ID)
	default:
		return nil
	}
}

type txOutcome int

const (
	txOutcomePending txOutcome = iota
	txOutcomeSuccess
	txOutcomeFailed
)

func classifyTransaction(n WebhookNotification) txOutcome {
	status := strings.ToLower(n.TransactionStatus)
	switch status {
	case "settlement", "paid":
		return txOutcomeSuccess
	case "capture":
		if strings.EqualFold(n.FraudStatus, "accept") {
			return txOutcomeSuccess
		}
		return txOutcomePending
	case "deny", "cancel", "expire", "failure":
		return txOutcomeFailed
	default:
		return txOutcomePending
	}
}

// expectedAmount is total_pay when set, else amount_idr (§4.10 step 3).
func expectedAmount(order *model.Order) decimal.Decimal {
	if order.TotalPay.IsPositive() {
		return order.TotalPay
	}
	return order.AmountIDR
}

// amountWithinTolerance allows max(0.5% of expected, 1000 IDR) of drift.
func amountWithinTolerance(expected, received decimal.Decimal) bool {
	tolerance := expected.Mul(decimal.NewFromFloat(0.005))
	floor := decimal.NewFromInt(1000)
	if tolerance.LessThan(floor) {
		tolerance = floor
	}
	return expected.Sub(received).Abs().LessThanOrEqual(tolerance)
}
