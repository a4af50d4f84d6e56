package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
)

var (
	ErrVoucherInactive      = errors.New("voucher is inactive")
	ErrVoucherExpired       = errors.New("voucher is expired")
	ErrVoucherNotOwned      = errors.New("voucher belongs to another user")
	ErrVoucherBelowMinimum  = errors.New("order amount is below the voucher minimum")
	ErrVoucherAlreadyUsed   = errors.New("voucher already used by this user")
	ErrVoucherPendingExists = errors.New("a pending order already uses this voucher")
	ErrQuotaExceeded        = errors.New("voucher quota exceeded")
)

// VoucherService is the Voucher Ledger (§4.4): validate_and_reserve / release
// / peek, built on the repository's atomic quota barrier
// (IncrementVoucherUsage), which closes a race a naive read-then-increment
// promo code path would be open to.
type VoucherService struct {
	repo *repository.Repository
}

func NewVoucherService(repo *repository.Repository) *VoucherService {
	return &VoucherService{repo: repo}
}

// ValidateAndReserve fetches the voucher, runs every rejection check, then
// atomically increments usage_count. Must run inside the caller's order
// creation transaction so a rollback releases the reservation.
func (s *VoucherService) ValidateAndReserve(ctx context.Context, q repository.Querier, code string, userID int64, orderAmount decimal.Decimal) (*model.Voucher, error) {
	v, err := s.repo.GetVoucherByCode(ctx, q, code)
	if err != nil {
		return nil, err
	}

	if err := s.validate(ctx, q, v, userID, orderAmount); err != nil {
		return nil, err
	}

	ok, err := s.repo.IncrementVoucherUsage(ctx, q, v.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}
	v.UsageCount++
	return v, nil
}

// Peek runs the same validations as ValidateAndReserve without incrementing
// usage, for UI-side confirmation previews.
func (s *VoucherService) Peek(ctx context.Context, code string, userID int64, orderAmount decimal.Decimal) (*model.Voucher, error) {
	v, err := s.repo.GetVoucherByCode(ctx, s.repo.DB(), code)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, s.repo.DB(), v, userID, orderAmount); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VoucherService) validate(ctx context.Context, q repository.Querier, v *model.Voucher, userID int64, orderAmount decimal.Decimal) error {
	if !v.Active {
		return ErrVoucherInactive
	}
	if v.IsExpired(time.Now()) {
		return ErrVoucherExpired
	}
	if !v.IsOwnedBy(userID) {
		return ErrVoucherNotOwned
	}
	if orderAmount.LessThan(v.MinAmount) {
		return ErrVoucherBelowMinimum
	}

	// Public multi-use vouchers (no owner) additionally forbid reuse by the
	// same user across a successful order or a still-live one.
	if v.OwnerID == nil {
		used, err := s.repo.HasSuccessfulOrderWithVoucher(ctx, q, userID, v.ID)
		if err != nil {
			return err
		}
		if used {
			return ErrVoucherAlreadyUsed
		}
		active, err := s.repo.HasActiveOrderWithVoucher(ctx, q, userID, v.ID)
		if err != nil {
			return err
		}
		if active {
			return ErrVoucherPendingExists
		}
	}
	return nil
}

// Release decrements usage_count with a floor at zero; a zero-row update
// (already at the floor) is silently ignored per §4.4.
func (s *VoucherService) Release(ctx context.Context, voucherID int64) error {
	return s.repo.DecrementVoucherUsage(ctx, voucherID)
}

func (s *VoucherService) Create(ctx context.Context, v *model.Voucher) error {
	return s.repo.CreateVoucher(ctx, v)
}

func (s *VoucherService) ExpireSweep(ctx context.Context) (int64, error) {
	return s.repo.DeactivateExpiredVouchers(ctx)
}
