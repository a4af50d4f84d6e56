package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockAcquisition is raised when a chain lock cannot be acquired within
// the configured retry budget (§4.2).
var ErrLockAcquisition = errors.New("could not acquire chain lock")

const chainLockKeyPrefix = "lock:chain:"

// chainLock serializes send_native calls per chain slug using a Redis
// SET NX lock with a crypto-random owner token and compare-and-delete
// release, mirroring the per-symbol price lock in internal/priceapi.
type chainLock struct {
	rdb     *redis.Client
	ttl     time.Duration
	retries int
	cap     time.Duration
}

func newChainLock(rdb *redis.Client, ttl time.Duration, retries int, hardCap time.Duration) *chainLock {
	return &chainLock{rdb: rdb, ttl: ttl, retries: retries, cap: hardCap}
}

// acquire retries up to l.retries times at 1s intervals, bounded by a hard
// cap, returning the owner token on success.
func (l *chainLock) acquire(ctx context.Context, slug string) (string, error) {
	token, err := randomLockToken()
	if err != nil {
		return "", err
	}
	key := chainLockKeyPrefix + slug

	deadline := time.Now().Add(l.cap)
	for attempt := 0; attempt < l.retries; attempt++ {
		if time.Now().After(deadline) {
			break
		}
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return "", ErrLockAcquisition
}

func (l *chainLock) release(ctx context.Context, slug, token string) {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	l.rdb.Eval(ctx, script, []string{chainLockKeyPrefix + slug}, token)
}

func randomLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
