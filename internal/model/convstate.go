package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ConversationStep string

const (
	StepIdle                  ConversationStep = "idle"
	StepAwaitingChain         ConversationStep = "awaiting_chain"
	StepAwaitingAmount        ConversationStep = "awaiting_amount"
	StepAwaitingCustomAmount  ConversationStep = "awaiting_custom_amount"
	StepAwaitingWallet        ConversationStep = "awaiting_wallet"
	StepAwaitingVoucher       ConversationStep = "awaiting_voucher"
	StepAwaitingConfirmation  ConversationStep = "awaiting_confirmation"
	StepAwaitingPaymentMethod ConversationStep = "awaiting_payment_method"
)

// ConversationState is the persisted per-user finite-state machine backing
// the interactive checkout flow (§3, §4.8, §9 "coroutine-like flows").
type ConversationState struct {
	ChatID        int64            `json:"chat_id"`
	Step          ConversationStep `json:"step"`
	Chain         string           `json:"chain,omitempty"`
	AmountIDR     decimal.Decimal  `json:"amount_idr,omitempty"`
	TokenAmount   decimal.Decimal  `json:"token_amount,omitempty"`
	WalletAddress string           `json:"wallet_address,omitempty"`
	VoucherCode   string           `json:"voucher_code,omitempty"`
	OrderID       string           `json:"order_id,omitempty"`
	SessionToken  string           `json:"session_token,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func Idle(chatID int64) ConversationState {
	return ConversationState{ChatID: chatID, Step: StepIdle, CreatedAt: time.Now()}
}

func (s ConversationState) IsExpired(now time.Time, ttl time.Duration) bool {
	return s.Step != StepIdle && now.Sub(s.CreatedAt) > ttl
}
