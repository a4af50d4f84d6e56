// Package convstate implements the Conversation State (§4.8): a per-user
// purchase flow FSM persisted in Redis with a 30-minute TTL, guarded by a
// short-lived distributed lock so concurrent updates from the same chat
// (a double-tap, a retried webhook callback) never interleave.
package convstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Step string

const (
	StepIdle                  Step = "idle"
	StepAwaitingChain         Step = "awaiting_chain"
	StepAwaitingAmount        Step = "awaiting_amount"
	StepAwaitingCustomAmount  Step = "awaiting_custom_amount"
	StepAwaitingWallet        Step = "awaiting_wallet"
	StepAwaitingVoucher       Step = "awaiting_voucher"
	StepAwaitingConfirmation  Step = "awaiting_confirmation"
	StepAwaitingPaymentMethod Step = "awaiting_payment_method"
	StepAwaitingAuthLink      Step = "awaiting_auth_link"
)

var validSteps = map[Step]bool{
	StepIdle: true, StepAwaitingChain: true, StepAwaitingAmount: true,
	StepAwaitingCustomAmount: true, StepAwaitingWallet: true, StepAwaitingVoucher: true,
	StepAwaitingConfirmation: true, StepAwaitingPaymentMethod: true, StepAwaitingAuthLink: true,
}

var (
	ErrLockBusy   = errors.New("operation already in progress")
	ErrPriceMoved = errors.New("price moved, please reconfirm")
)

// State is a single chat's in-progress purchase flow.
type State struct {
	Step          Step             `json:"step"`
	Chain         string           `json:"chain,omitempty"`
	AmountIDR     *decimal.Decimal `json:"amount_idr,omitempty"`
	TokenAmount   *decimal.Decimal `json:"token_amount,omitempty"`
	WalletAddress string           `json:"wallet_address,omitempty"`
	VoucherCode   string           `json:"voucher_code,omitempty"`
	OrderID       string           `json:"order_id,omitempty"`
	SessionToken  string           `json:"session_token,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func idle() *State {
	return &State{Step: StepIdle, CreatedAt: time.Now()}
}

const (
	stateKeyPrefix        = "convstate:"
	updateLockKeyPrefix   = "convstate:lock:update:"
	criticalLockKeyPrefix = "convstate:lock:critical:"
	stateTTL              = 30 * time.Minute
	updateLockTTL         = 5 * time.Second
	criticalLockTTL       = 30 * time.Second
)

var updateLockBackoff = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}

// Store is the Conversation State repository, backed directly by Redis —
// there is no durable SQL table for this entity. TTL is 30 minutes: a
// lost session is meant to simply expire.
type Store struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewStore(rdb *redis.Client, log *zap.Logger) *Store {
	return &Store{rdb: rdb, log: log}
}

// Get reads a chat's state. A malformed or missing blob is treated as idle
// rather than surfaced as an error, matching §4.8's schema-validation rule.
func (s *Store) Get(ctx context.Context, chatID int64) (*State, error) {
	raw, err := s.rdb.Get(ctx, stateKeyPrefix+fmt.Sprint(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return idle(), nil
	}
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.log.Warn("conversation state schema invalid, resetting to idle", zap.Int64("chat_id", chatID))
		return idle(), nil
	}
	if !validSteps[st.Step] {
		s.log.Warn("conversation state has unknown step, resetting to idle",
			zap.Int64("chat_id", chatID), zap.String("step", string(st.Step)))
		return idle(), nil
	}
	return &st, nil
}

// Update acquires the per-user update lock, reads, applies mutate, and
// writes back before releasing — the sole write path for conversation
// state (§4.8).
func (s *Store) Update(ctx context.Context, chatID int64, mutate func(*State) error) error {
	token, err := s.acquireUpdateLock(ctx, chatID)
	if err != nil {
		return err
	}
	defer s.releaseLock(context.Background(), updateLockKeyPrefix+fmt.Sprint(chatID), token)

	st, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if err := mutate(st); err != nil {
		return err
	}
	return s.write(ctx, chatID, st)
}

// Reset discards a chat's state back to idle, releasing the flow early
// (cancel button, error abort) without waiting out the TTL.
func (s *Store) Reset(ctx context.Context, chatID int64) error {
	return s.Update(ctx, chatID, func(st *State) error {
		*st = *idle()
		return nil
	})
}

func (s *Store) write(ctx context.Context, chatID int64, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, stateKeyPrefix+fmt.Sprint(chatID), raw, stateTTL).Err()
}

func (s *Store) acquireUpdateLock(ctx context.Context, chatID int64) (string, error) {
	key := updateLockKeyPrefix + fmt.Sprint(chatID)
	token, err := s.tryLock(ctx, key, updateLockTTL, updateLockBackoff)
	if err != nil {
		return "", ErrLockBusy
	}
	return token, nil
}

// AcquireCriticalSection implements §4.8's distinct create_order lock,
// held for the duration of the "has PENDING order?" recheck and order
// creation. The returned release func must run on every exit path.
func (s *Store) AcquireCriticalSection(ctx context.Context, userID int64) (release func(), err error) {
	key := criticalLockKeyPrefix + fmt.Sprint(userID)
	token, lockErr := s.tryLock(ctx, key, criticalLockTTL, nil)
	if lockErr != nil {
		return nil, ErrLockBusy
	}
	return func() { s.releaseLock(context.Background(), key, token) }, nil
}

func (s *Store) tryLock(ctx context.Context, key string, ttl time.Duration, backoff []time.Duration) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}
	for _, wait := range backoff {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
	}
	return "", errors.New("lock held")
}

func (s *Store) releaseLock(ctx context.Context, key, token string) {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	s.rdb.Eval(ctx, script, []string{key}, token)
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CheckSlippage implements §4.8's slippage guard: the pinned token amount
// from quote-confirmation time is compared against a freshly recomputed
// one, rejecting a greater than 5% drift.
func CheckSlippage(pinned, current decimal.Decimal) error {
	if pinned.IsZero() {
		return nil
	}
	diff := pinned.Sub(current).Abs().Div(pinned)
	if diff.GreaterThan(decimal.NewFromFloat(0.05)) {
		return ErrPriceMoved
	}
	return nil
}
