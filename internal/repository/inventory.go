package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/kriptapay/payout-engine/internal/model"
)

func (r *Repository) GetInventory(ctx context.Context, q Querier, chainID int64, symbol string) (*model.Inventory, error) {
	var inv model.Inventory
	err := q.GetContext(ctx, &inv, `SELECT * FROM inventory WHERE chain_id = $1 AND symbol = $2`, chainID, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &inv, err
}

// ReserveInventory locks the inventory row and, if balance-reserved is
// sufficient, increments reserved by amount. Returns false (no error) when
// there isn't enough available headroom, so callers can roll back the
// enclosing transaction (§4.3 reserve).
func (r *Repository) ReserveInventory(ctx context.Context, q Querier, chainID int64, symbol string, amount decimal.Decimal) (bool, error) {
	var inv model.Inventory
	err := q.GetContext(ctx, &inv, `
		SELECT * FROM inventory WHERE chain_id = $1 AND symbol = $2 FOR UPDATE`,
		chainID, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock inventory row: %w", err)
	}

	available := inv.Balance.Sub(inv.Reserved)
	if available.LessThan(amount) {
		return false, nil
	}

	_, err = q.ExecContext(ctx, `
		UPDATE inventory SET reserved = reserved + $1, updated_at = NOW()
		WHERE chain_id = $2 AND symbol = $3`,
		amount, chainID, symbol)
	if err != nil {
		return false, fmt.Errorf("increment reserved: %w", err)
	}
	return true, nil
}

// ReleaseInventory floors reserved at zero atomically; it never depends on a
// prior read, so double-release cannot drive it negative (§4.3 release).
func (r *Repository) ReleaseInventory(ctx context.Context, q Querier, chainID int64, symbol string, amount decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
		UPDATE inventory
		SET reserved = GREATEST(reserved - $1, 0), updated_at = NOW()
		WHERE chain_id = $2 AND symbol = $3`,
		amount, chainID, symbol)
	return err
}

// DeductInventory decrements both balance and reserved after a successful
// send. It never rolls back on anomaly — money is already sent — the
// caller is expected to fatal-log if either field goes negative (§4.3 deduct).
func (r *Repository) DeductInventory(ctx context.Context, q Querier, chainID int64, symbol string, amount decimal.Decimal) (*model.Inventory, error) {
	var inv model.Inventory
	err := q.GetContext(ctx, &inv, `
		UPDATE inventory
		SET balance = balance - $1, reserved = reserved - $1, updated_at = NOW()
		WHERE chain_id = $2 AND symbol = $3
		RETURNING *`,
		amount, chainID, symbol)
	return &inv, err
}

// SyncBalance overwrites balance for the native symbol from an on-chain
// read; reserved is untouched (§4.3 sync).
func (r *Repository) SyncBalance(ctx context.Context, chainID int64, symbol string, balance decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory SET balance = $1, updated_at = NOW()
		WHERE chain_id = $2 AND symbol = $3`,
		balance, chainID, symbol)
	return err
}
