package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/kriptapay/payout-engine/internal/model"
)

func (r *Repository) GetOrder(ctx context.Context, q Querier, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := q.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &o, err
}

func (r *Repository) GetPendingOrderForUser(ctx context.Context, q Querier, userID int64) (*model.Order, error) {
	var o model.Order
	err := q.GetContext(ctx, &o, `
		SELECT * FROM orders WHERE user_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &o, err
}

func (r *Repository) CreateOrder(ctx context.Context, q Querier, o *model.Order) error {
	return q.GetContext(ctx, o, `
		INSERT INTO orders (user_id, chain_id, symbol, amount_idr, amount_token, markup_percent, wallet_address, voucher_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING')
		RETURNING *`,
		o.UserID, o.ChainID, o.Symbol, o.AmountIDR, o.AmountToken, o.MarkupPercent, o.WalletAddress, o.VoucherID)
}

// AttachPayment is only meaningful while PENDING; a zero-row update means
// the order left PENDING between read and write and the caller must
// re-fetch (§4.5 create_payment).
func (r *Repository) AttachPayment(ctx context.Context, orderID uuid.UUID, midtransID, paymentURL string, method model.PaymentMethod, feeIDR, totalPay decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET midtrans_id = $1, payment_url = $2, payment_method = $3, fee_idr = $4, total_pay = $5, updated_at = NOW()
		WHERE id = $6 AND status = 'PENDING'`,
		midtransID, paymentURL, method, feeIDR, totalPay, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) GetOrderByMidtransID(ctx context.Context, midtransID string) (*model.Order, error) {
	var o model.Order
	err := r.db.GetContext(ctx, &o, `SELECT * FROM orders WHERE midtrans_id = $1`, midtransID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &o, err
}

// CancelPending is the conditional PENDING -> CANCELLED transition.
func (r *Repository) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalTransition(ctx, id, "PENDING", "CANCELLED")
}

// TransitionToExpired is the conditional PENDING -> EXPIRED transition.
func (r *Repository) TransitionToExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalTransition(ctx, id, "PENDING", "EXPIRED")
}

// TransitionToPaid is the conditional PENDING -> PAID transition, setting
// paid_at. A zero-row update means the order was already processed —
// callers must treat that as a no-op, not an error (§4.5
// handle_payment_success).
func (r *Repository) TransitionToPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = 'PAID', paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AcquireProcessingLock is the payout executor's step-1 lock acquisition:
// {status=PAID, tx_hash=NULL} -> PROCESSING (§4.5 process_order).
func (r *Repository) AcquireProcessingLock(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = 'PROCESSING', updated_at = NOW()
		WHERE id = $1 AND status = 'PAID' AND tx_hash IS NULL`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// StealProcessingLock performs the zombie-worker optimistic-concurrency
// steal, guarded on the exact stale updated_at (§4.5 step 1, §8 scenario 3).
func (r *Repository) StealProcessingLock(ctx context.Context, id uuid.UUID, staleUpdatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING' AND updated_at = $2`, id, staleUpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailProcessing is the safe-blockchain-failure transition, PROCESSING ->
// FAILED (§4.5 step 2).
func (r *Repository) FailProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalTransition(ctx, id, "PROCESSING", "FAILED")
}

// FailProcessingTx is FailProcessing run against a caller-supplied Querier,
// so it can share a transaction with the inventory release that follows it
// (§4.5 step 2: "in one transaction set status=FAILED and release inventory").
func (r *Repository) FailProcessingTx(ctx context.Context, q Querier, id uuid.UUID) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE orders SET status = 'FAILED', updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FinalizeSuccess sets the terminal SUCCESS state with tx_hash and
// completed_at. It is guarded on PROCESSING so a caller that lost the lock
// cannot finalize twice (§4.5 step 3).
func (r *Repository) FinalizeSuccess(ctx context.Context, q Querier, id uuid.UUID, txHash string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE orders SET status = 'SUCCESS', tx_hash = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'`, id, txHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecoverFinalize is the lock-acquisition recovery path: an order that
// already has a tx_hash but never reached SUCCESS (crash between send and
// finalize) is promoted directly from any status other than SUCCESS
// (§4.5 step 1 recovery, §8 scenario 4).
func (r *Repository) RecoverFinalize(ctx context.Context, q Querier, id uuid.UUID, txHash string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE orders SET status = 'SUCCESS', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tx_hash = $2 AND status != 'SUCCESS'`, id, txHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetBroadcastHash records a tx_hash without changing status, used when
// send_native raises TxBroadcasted before the executor moves to Finalize.
func (r *Repository) SetBroadcastHash(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET tx_hash = $2, updated_at = NOW() WHERE id = $1`, id, txHash)
	return err
}

func (r *Repository) ListExpiryCandidates(ctx context.Context, cutoff time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at`, cutoff)
	return orders, err
}

// ListUnqueuedPaid is the sweep for §9's open question (b): PAID orders
// with no tx_hash whose payout job may have been lost between webhook and
// enqueue.
func (r *Repository) ListUnqueuedPaid(ctx context.Context, olderThan time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE status = 'PAID' AND tx_hash IS NULL AND updated_at < $1
		ORDER BY updated_at`, olderThan)
	return orders, err
}

func (r *Repository) conditionalTransition(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
