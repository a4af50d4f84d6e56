package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kriptapay/payout-engine/internal/model"
)

var ErrReferralNotFound = errors.New("referral not found")

func (r *Repository) CreateReferral(ctx context.Context, ref *model.Referral) error {
	return r.db.GetContext(ctx, ref, `
		INSERT INTO referrals (referrer_id, referee_id, is_valid, reward_given)
		VALUES ($1, $2, false, false)
		RETURNING *`, ref.ReferrerID, ref.RefereeID)
}

func (r *Repository) GetReferral(ctx context.Context, id int64) (*model.Referral, error) {
	var ref model.Referral
	err := r.db.GetContext(ctx, &ref, `SELECT * FROM referrals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReferralNotFound
	}
	return &ref, err
}

func (r *Repository) GetReferralByReferee(ctx context.Context, refereeID int64) (*model.Referral, error) {
	var ref model.Referral
	err := r.db.GetContext(ctx, &ref, `SELECT * FROM referrals WHERE referee_id = $1`, refereeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReferralNotFound
	}
	return &ref, err
}

func (r *Repository) CountSuccessfulOrders(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = 'SUCCESS'`, userID)
	return count, err
}

// ValidateReferral is the idempotency barrier for validation:
// is_valid=false -> true (§4.7 validate).
func (r *Repository) ValidateReferral(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE referrals SET is_valid = true, validated_at = NOW()
		WHERE id = $1 AND is_valid = false`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GrantReferralReward is the single atomic "who owns this reward" barrier:
// reward_given=false -> true (§4.7 grant).
func (r *Repository) GrantReferralReward(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE referrals SET reward_given = true
		WHERE id = $1 AND reward_given = false`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) CountValidReferralsByReferrer(ctx context.Context, referrerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND is_valid = true`, referrerID)
	return count, err
}

func (r *Repository) ListPendingReferrals(ctx context.Context) ([]model.Referral, error) {
	var refs []model.Referral
	err := r.db.SelectContext(ctx, &refs, `SELECT * FROM referrals WHERE is_valid = false`)
	return refs, err
}
