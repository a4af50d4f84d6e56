package model

import "time"

// Referral is created once, at referee registration, if a valid referral
// code was presented; never deleted thereafter. Mutated only by the
// Referral Engine (§3, §4.7).
type Referral struct {
	ID          int64      `json:"id" db:"id"`
	ReferrerID  int64      `json:"referrer_id" db:"referrer_id"`
	RefereeID   int64      `json:"referee_id" db:"referee_id"`
	IsValid     bool       `json:"is_valid" db:"is_valid"`
	RewardGiven bool       `json:"reward_given" db:"reward_given"`
	ValidatedAt *time.Time `json:"validated_at,omitempty" db:"validated_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
