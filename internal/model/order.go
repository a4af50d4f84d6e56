package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusSuccess    OrderStatus = "SUCCESS"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusExpired    OrderStatus = "EXPIRED"
)

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusSuccess, OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodQRIS PaymentMethod = "QRIS"
	PaymentMethodVA   PaymentMethod = "VA"
)

// Order is the central entity of the payout engine; its status lifecycle is
// the state machine of §4.5.
type Order struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        int64           `json:"user_id" db:"user_id"`
	ChainID       int64           `json:"chain_id" db:"chain_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	AmountIDR     decimal.Decimal `json:"amount_idr" db:"amount_idr"`
	AmountToken   decimal.Decimal `json:"amount_token" db:"amount_token"`
	MarkupPercent decimal.Decimal `json:"markup_percent" db:"markup_percent"`
	WalletAddress string          `json:"wallet_address" db:"wallet_address"`
	VoucherID     *int64          `json:"voucher_id,omitempty" db:"voucher_id"`
	Status        OrderStatus     `json:"status" db:"status"`
	PaymentMethod *PaymentMethod  `json:"payment_method,omitempty" db:"payment_method"`
	FeeIDR        decimal.Decimal `json:"fee_idr" db:"fee_idr"`
	TotalPay      decimal.Decimal `json:"total_pay" db:"total_pay"`
	TxHash        *string         `json:"tx_hash,omitempty" db:"tx_hash"`
	MidtransID    *string         `json:"midtrans_id,omitempty" db:"midtrans_id"`
	PaymentURL    *string         `json:"payment_url,omitempty" db:"payment_url"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}
