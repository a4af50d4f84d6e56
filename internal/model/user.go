package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the opaque purchasing identity. ChatID is the chat-platform id
// used by Conversation State and notifications; it is optional because the
// HTTP surface can also authenticate a user without a linked chat.
type User struct {
	ID           int64      `json:"id" db:"id"`
	Email        *string    `json:"email,omitempty" db:"email"`
	ChatID       *int64     `json:"chat_id,omitempty" db:"chat_id"`
	ReferralCode string     `json:"referral_code" db:"referral_code"`
	ReferredBy   *int64     `json:"referred_by,omitempty" db:"referred_by"`
	Role         Role       `json:"role" db:"role"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
