package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kriptapay/payout-engine/internal/model"
)

func (r *Repository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *Repository) GetUserByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE referral_code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	return r.db.GetContext(ctx, &u.ID, `
		INSERT INTO users (email, chat_id, referral_code, referred_by, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		u.Email, u.ChatID, u.ReferralCode, u.ReferredBy, u.Role)
}

func (r *Repository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admins WHERE user_id = $1`, userID)
	return count > 0, err
}
