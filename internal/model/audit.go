package model

import "time"

// AuditLog captures critical-unknown errors that the Order Engine cannot
// locally recover from — ambiguous RPC errors, post-send DB failures — for
// operator attention (§7 "Critical unknown").
type AuditLog struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   *string   `json:"order_id,omitempty" db:"order_id"`
	Severity  string    `json:"severity" db:"severity"`
	Message   string    `json:"message" db:"message"`
	Details   []byte    `json:"details,omitempty" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
