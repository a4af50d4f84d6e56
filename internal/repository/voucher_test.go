package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// IncrementVoucherUsage is the only place usage_count is advanced; its WHERE
// clause is the sole guard against a voucher being redeemed more than
// max_usage times. Racing it N ways against a max_usage=2 voucher must let
// exactly two callers win (§8 scenario: voucher-exhaustion-race).
func TestIncrementVoucherUsageOnlyAllowsMaxUsageWinners(t *testing.T) {
	db := newTestDB(t)
	r := &Repository{db: db}
	ctx := context.Background()

	res, err := db.Exec(`
		INSERT INTO vouchers (code, value_idr, max_usage) VALUES ('RACE1', ?, 2)`,
		decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	voucherID, _ := res.LastInsertId()

	const attempts = 10
	var wg sync.WaitGroup
	wins := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.IncrementVoucherUsage(ctx, db, voucherID)
			if err != nil {
				t.Errorf("increment usage: %v", err)
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
	if winners != 2 {
		t.Fatalf("expected exactly 2 of %d concurrent redemptions to win against a max_usage=2 voucher, got %d", attempts, winners)
	}

	voucher, err := r.GetVoucher(ctx, voucherID)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if voucher.UsageCount != 2 {
		t.Fatalf("expected usage_count to settle at 2, got %d", voucher.UsageCount)
	}
}
