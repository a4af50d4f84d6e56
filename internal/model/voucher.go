package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a per-code reservation counter. Invariant: 0 <= usage_count <=
// max_usage (§4.4, §8).
type Voucher struct {
	ID         int64           `json:"id" db:"id"`
	Code       string          `json:"code" db:"code"`
	OwnerID    *int64          `json:"owner_id,omitempty" db:"owner_id"`
	ValueIDR   decimal.Decimal `json:"value_idr" db:"value_idr"`
	MinAmount  decimal.Decimal `json:"min_amount" db:"min_amount"`
	MaxUsage   int             `json:"max_usage" db:"max_usage"`
	UsageCount int             `json:"usage_count" db:"usage_count"`
	Active     bool            `json:"active" db:"active"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

func (v *Voucher) IsExpired(now time.Time) bool {
	return v.ExpiresAt != nil && now.After(*v.ExpiresAt)
}

func (v *Voucher) IsOwnedBy(userID int64) bool {
	return v.OwnerID == nil || *v.OwnerID == userID
}
