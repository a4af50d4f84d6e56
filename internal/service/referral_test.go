package service

import (
	"testing"
	"time"
)

func TestExpiresInReturnsFutureTime(t *testing.T) {
	before := time.Now()
	got := expiresIn(24 * time.Hour)
	if got == nil {
		t.Fatal("expected non-nil expiry")
	}
	if !got.After(before) {
		t.Fatal("expected expiry to be in the future")
	}
}

func TestCreateReferralRejectsSelfReferral(t *testing.T) {
	s := &ReferralService{}
	if err := s.CreateReferral(nil, 5, 5); err != ErrSelfReferral {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
}
