package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kriptapay/payout-engine/internal/model"
)

func (r *Repository) ListActiveChains(ctx context.Context) ([]model.Chain, error) {
	var chains []model.Chain
	err := r.db.SelectContext(ctx, &chains, `SELECT * FROM chains WHERE active = true ORDER BY slug`)
	return chains, err
}

func (r *Repository) GetChainBySlug(ctx context.Context, slug string) (*model.Chain, error) {
	var c model.Chain
	err := r.db.GetContext(ctx, &c, `SELECT * FROM chains WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *Repository) GetChain(ctx context.Context, id int64) (*model.Chain, error) {
	var c model.Chain
	err := r.db.GetContext(ctx, &c, `SELECT * FROM chains WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *Repository) GetNativeToken(ctx context.Context, chainID int64) (*model.Token, error) {
	var t model.Token
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tokens WHERE chain_id = $1 AND is_native = true AND active = true`, chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &t, err
}
