package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
)

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	return value, err
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`, key, value)
	return err
}

func (r *Repository) GetSettingDecimal(ctx context.Context, key string, fallback decimal.Decimal) decimal.Decimal {
	value, err := r.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fallback
	}
	return d
}
