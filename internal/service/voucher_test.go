package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
)

func TestVoucherValidateRejectsInactive(t *testing.T) {
	s := &VoucherService{}
	v := &model.Voucher{Active: false}
	if err := s.validate(nil, nil, v, 1, decimal.NewFromInt(100)); err != ErrVoucherInactive {
		t.Fatalf("expected ErrVoucherInactive, got %v", err)
	}
}

func TestVoucherValidateRejectsExpired(t *testing.T) {
	s := &VoucherService{}
	past := time.Now().Add(-time.Hour)
	v := &model.Voucher{Active: true, ExpiresAt: &past}
	if err := s.validate(nil, nil, v, 1, decimal.NewFromInt(100)); err != ErrVoucherExpired {
		t.Fatalf("expected ErrVoucherExpired, got %v", err)
	}
}

func TestVoucherValidateRejectsWrongOwner(t *testing.T) {
	s := &VoucherService{}
	owner := int64(42)
	v := &model.Voucher{Active: true, OwnerID: &owner}
	if err := s.validate(nil, nil, v, 1, decimal.NewFromInt(100)); err != ErrVoucherNotOwned {
		t.Fatalf("expected ErrVoucherNotOwned, got %v", err)
	}
}

func TestVoucherValidateRejectsBelowMinimum(t *testing.T) {
	s := &VoucherService{}
	owner := int64(1)
	v := &model.Voucher{Active: true, OwnerID: &owner, MinAmount: decimal.NewFromInt(50000)}
	if err := s.validate(nil, nil, v, 1, decimal.NewFromInt(10000)); err != ErrVoucherBelowMinimum {
		t.Fatalf("expected ErrVoucherBelowMinimum, got %v", err)
	}
}

func TestVoucherValidateAcceptsOwnedVoucherWithinMinimum(t *testing.T) {
	s := &VoucherService{}
	owner := int64(7)
	v := &model.Voucher{Active: true, OwnerID: &owner, MinAmount: decimal.NewFromInt(10000)}
	if err := s.validate(nil, nil, v, 7, decimal.NewFromInt(50000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
