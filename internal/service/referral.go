package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
)

var ErrSelfReferral = errors.New("cannot refer yourself")

// ReferralService is the Referral Engine (§4.7), built around two atomic
// barriers: is_valid false->true and reward_given false->true are each a
// single conditional update, so validate/grant are each safe under
// concurrent invocation from the success path, the 10-minute sweep, and
// login.
type ReferralService struct {
	repo            *repository.Repository
	voucher         *VoucherService
	notifier        Notifier
	threshold       int
	valueIDR        decimal.Decimal
	bonusEvery      int
	voucherTTL      time.Duration
	bonusVoucherTTL time.Duration
}

func NewReferralService(repo *repository.Repository, voucher *VoucherService, notifier Notifier, cfg config.OrderConfig) *ReferralService {
	value, err := decimal.NewFromString(cfg.ReferralValueIDR)
	if err != nil {
		value = decimal.NewFromInt(25000)
	}
	return &ReferralService{
		repo:            repo,
		voucher:         voucher,
		notifier:        notifier,
		threshold:       cfg.ReferralThreshold,
		valueIDR:        value,
		bonusEvery:      cfg.ReferralBonusEvery,
		voucherTTL:      90 * 24 * time.Hour,
		bonusVoucherTTL: 30 * 24 * time.Hour,
	}
}

// SetNotifier wires the Telegram bot in after construction; see
// OrderService.SetNotifier for why this is a setter rather than a
// constructor argument.
func (s *ReferralService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateReferral records the referee -> referrer relationship at
// registration time, when a referral code was presented.
func (s *ReferralService) CreateReferral(ctx context.Context, referrerID, refereeID int64) error {
	if referrerID == refereeID {
		return ErrSelfReferral
	}
	if _, err := s.repo.GetReferralByReferee(ctx, refereeID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrReferralNotFound) {
		return err
	}
	ref := &model.Referral{ReferrerID: referrerID, RefereeID: refereeID}
	return s.repo.CreateReferral(ctx, ref)
}

// Validate implements §4.7 validate: idempotent on an already-valid and
// rewarded referral, gated on the referee's successful-order count meeting
// the configured threshold.
func (s *ReferralService) Validate(ctx context.Context, refereeID int64) error {
	ref, err := s.repo.GetReferralByReferee(ctx, refereeID)
	if errors.Is(err, repository.ErrReferralNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if ref.IsValid && ref.RewardGiven {
		return nil
	}

	count, err := s.repo.CountSuccessfulOrders(ctx, refereeID)
	if err != nil {
		return err
	}
	if count < s.threshold {
		return nil
	}

	ok, err := s.repo.ValidateReferral(ctx, ref.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.Grant(ctx, ref.ID)
}

// Grant implements §4.7 grant: the reward_given barrier decides exactly one
// caller creates the reward voucher and checks the milestone bonus.
func (s *ReferralService) Grant(ctx context.Context, referralID int64) error {
	ok, err := s.repo.GrantReferralReward(ctx, referralID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.grantRewardFor(ctx, referralID)
}

func (s *ReferralService) grantRewardFor(ctx context.Context, referralID int64) error {
	ref, err := s.repo.GetReferral(ctx, referralID)
	if err != nil {
		return fmt.Errorf("load referral %d: %w", referralID, err)
	}

	code := fmt.Sprintf("REF-%d-%d", ref.ReferrerID, referralID)
	v := &model.Voucher{
		Code:      code,
		OwnerID:   &ref.ReferrerID,
		ValueIDR:  s.valueIDR,
		MaxUsage:  1,
		Active:    true,
		ExpiresAt: expiresIn(s.voucherTTL),
	}
	if err := s.voucher.Create(ctx, v); err != nil {
		return fmt.Errorf("create referral reward voucher: %w", err)
	}

	validCount, err := s.repo.CountValidReferralsByReferrer(ctx, ref.ReferrerID)
	if err != nil {
		return fmt.Errorf("count valid referrals: %w", err)
	}
	if s.bonusEvery > 0 && validCount > 0 && validCount%s.bonusEvery == 0 {
		bonusCode := fmt.Sprintf("REFBONUS-%d-%d", ref.ReferrerID, validCount)
		bonus := &model.Voucher{
			Code:      bonusCode,
			OwnerID:   &ref.ReferrerID,
			ValueIDR:  s.valueIDR,
			MaxUsage:  1,
			Active:    true,
			ExpiresAt: expiresIn(s.bonusVoucherTTL),
		}
		if err := s.voucher.Create(ctx, bonus); err != nil {
			return fmt.Errorf("create referral milestone voucher: %w", err)
		}
	}

	s.notifier.NotifyReferralReward(ctx, ref.ReferrerID, code)
	return nil
}

func expiresIn(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

// SweepPending implements §4.7's 10-minute sweep over referrals still
// awaiting validation.
func (s *ReferralService) SweepPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingReferrals(ctx)
	if err != nil {
		return 0, err
	}
	validated := 0
	for _, ref := range pending {
		if err := s.Validate(ctx, ref.RefereeID); err != nil {
			continue
		}
		validated++
	}
	return validated, nil
}
