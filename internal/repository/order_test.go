package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
)

func seedPendingOrder(t *testing.T, r *Repository, userID, chainID int64) *model.Order {
	t.Helper()
	ctx := context.Background()
	o := &model.Order{
		UserID:        userID,
		ChainID:       chainID,
		Symbol:        "ETH",
		AmountIDR:     decimal.NewFromInt(500000),
		AmountToken:   decimal.NewFromFloat(0.01),
		MarkupPercent: decimal.Zero,
		WalletAddress: "0xabc",
	}
	if err := r.CreateOrder(ctx, r.db, o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

// CancelPending must only ever flip PENDING -> CANCELLED once; a second call
// against an already-cancelled order (§8 scenario: double-tap cancel) is a
// no-op, not an error.
func TestCancelPendingIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	r := &Repository{db: db}
	userID, chainID := seedUserAndChain(t, db)
	order := seedPendingOrder(t, r, userID, chainID)

	ctx := context.Background()

	ok, err := r.CancelPending(ctx, order.ID)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if !ok {
		t.Fatal("expected first cancel to transition the order")
	}

	ok, err = r.CancelPending(ctx, order.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if ok {
		t.Fatal("second cancel on an already-cancelled order must be a no-op")
	}

	got, err := r.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != model.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}
}

// TransitionToPaid guards the same way: a webhook delivered twice for the
// same payment must only ever charge the PENDING -> PAID transition once.
func TestTransitionToPaidIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	r := &Repository{db: db}
	userID, chainID := seedUserAndChain(t, db)
	order := seedPendingOrder(t, r, userID, chainID)

	ctx := context.Background()

	ok, err := r.TransitionToPaid(ctx, order.ID)
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if !ok {
		t.Fatal("expected first transition to PAID to succeed")
	}

	ok, err = r.TransitionToPaid(ctx, order.ID)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if ok {
		t.Fatal("duplicate webhook delivery must not re-transition an already-PAID order")
	}
}

// AcquireProcessingLock is the payout executor's entry lock. Racing it N
// ways against the same PAID order must let exactly one caller through,
// since a double-send would double-spend the hot wallet (§8 scenario:
// process_order-concurrent-N).
func TestAcquireProcessingLockOnlyOneWinner(t *testing.T) {
	db := newTestDB(t)
	r := &Repository{db: db}
	userID, chainID := seedUserAndChain(t, db)
	order := seedPendingOrder(t, r, userID, chainID)

	ctx := context.Background()
	if ok, err := r.TransitionToPaid(ctx, order.ID); err != nil || !ok {
		t.Fatalf("setup: transition to paid failed: ok=%v err=%v", ok, err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	wins := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.AcquireProcessingLock(ctx, order.ID)
			if err != nil {
				t.Errorf("acquire lock: %v", err)
				return
			}
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range wins {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 of %d concurrent lock acquisitions to win, got %d", attempts, winners)
	}

	got, err := r.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != model.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", got.Status)
	}
}

// StealProcessingLock must only succeed when the caller's remembered
// updated_at still matches the row exactly; a zombie worker racing a second
// steal attempt (or a worker that already touched the row) must lose.
func TestStealProcessingLockRequiresExactStaleTimestamp(t *testing.T) {
	db := newTestDB(t)
	r := &Repository{db: db}
	userID, chainID := seedUserAndChain(t, db)
	order := seedPendingOrder(t, r, userID, chainID)

	ctx := context.Background()
	if ok, err := r.TransitionToPaid(ctx, order.ID); err != nil || !ok {
		t.Fatalf("setup: transition to paid failed: ok=%v err=%v", ok, err)
	}
	if ok, err := r.AcquireProcessingLock(ctx, order.ID); err != nil || !ok {
		t.Fatalf("setup: acquire lock failed: ok=%v err=%v", ok, err)
	}

	locked, err := r.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}

	wrongStale := locked.UpdatedAt.Add(-time.Minute)
	ok, err := r.StealProcessingLock(ctx, order.ID, wrongStale)
	if err != nil {
		t.Fatalf("steal with wrong timestamp: %v", err)
	}
	if ok {
		t.Fatal("steal must not succeed against a stale timestamp that doesn't match the row")
	}

	ok, err = r.StealProcessingLock(ctx, order.ID, locked.UpdatedAt)
	if err != nil {
		t.Fatalf("steal with correct timestamp: %v", err)
	}
	if !ok {
		t.Fatal("steal must succeed when the caller's remembered updated_at exactly matches the row")
	}

	// Having just stolen the lock, a second steal attempt against the same
	// now-stale timestamp must lose: it no longer matches the fresh
	// updated_at the first steal just wrote.
	ok, err = r.StealProcessingLock(ctx, order.ID, locked.UpdatedAt)
	if err != nil {
		t.Fatalf("repeat steal: %v", err)
	}
	if ok {
		t.Fatal("a second steal against an already-consumed timestamp must not succeed")
	}
}
