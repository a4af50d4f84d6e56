package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kriptapay/payout-engine/internal/model"
)

var ErrVoucherNotFound = errors.New("voucher not found")

func (r *Repository) GetVoucherByCode(ctx context.Context, q Querier, code string) (*model.Voucher, error) {
	var v model.Voucher
	err := q.GetContext(ctx, &v, `SELECT * FROM vouchers WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVoucherNotFound
	}
	return &v, err
}

func (r *Repository) GetVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	var v model.Voucher
	err := r.db.GetContext(ctx, &v, `SELECT * FROM vouchers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVoucherNotFound
	}
	return &v, err
}

// IncrementVoucherUsage is the sole atomic quota barrier: the WHERE clause
// guards on usage_count < max_usage so a racing pair of callers can only
// ever have one succeed. A zero-row update means the quota just ran out;
// this repository never trusts a prior read (RowsAffected() == 0 must be
// treated as QuotaExceeded by the caller — see internal/service/voucher.go).
func (r *Repository) IncrementVoucherUsage(ctx context.Context, q Querier, id int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE vouchers SET usage_count = usage_count + 1
		WHERE id = $1 AND usage_count < max_usage`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DecrementVoucherUsage floors at zero; a zero-row update (already at 0) is
// ignored by design (§4.4 release).
func (r *Repository) DecrementVoucherUsage(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE vouchers SET usage_count = usage_count - 1
		WHERE id = $1 AND usage_count > 0`, id)
	return err
}

// HasSuccessfulOrderWithVoucher and HasActiveOrderWithVoucher back the
// public multi-use voucher re-use checks in validate_and_reserve.
func (r *Repository) HasSuccessfulOrderWithVoucher(ctx context.Context, q Querier, userID int64, voucherID int64) (bool, error) {
	var count int
	err := q.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND voucher_id = $2 AND status = 'SUCCESS'`, userID, voucherID)
	return count > 0, err
}

func (r *Repository) HasActiveOrderWithVoucher(ctx context.Context, q Querier, userID int64, voucherID int64) (bool, error) {
	var count int
	err := q.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND voucher_id = $2 AND status IN ('PENDING', 'PAID', 'PROCESSING')`, userID, voucherID)
	return count > 0, err
}

func (r *Repository) CreateVoucher(ctx context.Context, v *model.Voucher) error {
	return r.db.GetContext(ctx, &v.ID, `
		INSERT INTO vouchers (code, owner_id, value_idr, min_amount, max_usage, usage_count, active, expires_at)
		VALUES ($1, $2, $3, $4, $5, 0, true, $6)
		RETURNING id`,
		v.Code, v.OwnerID, v.ValueIDR, v.MinAmount, v.MaxUsage, v.ExpiresAt)
}

func (r *Repository) DeactivateExpiredVouchers(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE vouchers SET active = false
		WHERE active = true AND expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
