package service

import "context"

// Notifier delivers user-facing events to whatever chat surface the user
// is linked to. The Telegram bot is the only implementation today; it is
// an interface so the Order and Referral engines never import
// internal/telegram directly — bot.go calls down into services, not the
// reverse.
type Notifier interface {
	NotifyOrderSuccess(ctx context.Context, userID int64, orderID, txHash, explorerURL string)
	NotifyOrderFailed(ctx context.Context, userID int64, orderID, reason string)
	NotifyReferralReward(ctx context.Context, userID int64, voucherCode string)
}

// NoopNotifier is used where no chat is linked or in tests.
type NoopNotifier struct{}

func (NoopNotifier) NotifyOrderSuccess(context.Context, int64, string, string, string) {}
func (NoopNotifier) NotifyOrderFailed(context.Context, int64, string, string)          {}
func (NoopNotifier) NotifyReferralReward(context.Context, int64, string)               {}
