package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"

	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
)

// UserService provisions the opaque purchasing identity of §3 with a
// first-touch get-or-create pattern. Lookup and creation key off chat_id
// rather than id, since here user.id is an internal surrogate key rather
// than the chat platform id itself.
type UserService struct {
	repo *repository.Repository
}

func NewUserService(repo *repository.Repository) *UserService {
	return &UserService{repo: repo}
}

// GetOrCreateByChatID resolves the user linked to a chat id, creating one
// with a fresh referral code on first contact. referredBy is set only at
// creation, matching the immutable back-reference named in §3.
func (s *UserService) GetOrCreateByChatID(ctx context.Context, chatID int64, referredBy *int64) (*model.User, bool, error) {
	existing, err := s.repo.GetUserByChatID(ctx, chatID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	code, err := generateReferralCode()
	if err != nil {
		return nil, false, err
	}

	u := &model.User{
		ChatID:       &chatID,
		ReferralCode: code,
		ReferredBy:   referredBy,
		Role:         model.RoleUser,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *UserService) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return s.repo.GetUserByReferralCode(ctx, code)
}

func generateReferralCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := base32.StdEncoding.EncodeToString(buf)
	code = strings.TrimRight(code, "=")
	return strings.ToLower(code[:8]), nil
}
