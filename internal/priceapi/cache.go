// Package priceapi implements the Price Feed & Cache component (§4.1): a
// streaming writer, a REST refresher, and a stale-while-revalidate reader
// backed by Redis, generalizing an in-process RWMutex+TTL cache into a
// shared, multi-symbol store.
package priceapi

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

	"github.com/kriptapay/payout-engine/internal/model"
)

var ErrPriceUnavailable = errors.New("price unavailable")

const (
	hardTTLDefault = time.Hour
	keyPricePrefix = "price:"
	keyLockPrefix  = "lock:price:"
)

type Fetcher interface {
	FetchOne(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Cache is the shared SWR store described in §4.1. It never falls through to
// a persistent store on a miss; a total miss either fetches synchronously
// under a per-symbol lock or fails with ErrPriceUnavailable.
type Cache struct {
	rdb       *redis.Client
	log       *zap.Logger
	fetcher   Fetcher
	swrWindow time.Duration
	hardTTL   time.Duration
	lockTTL   time.Duration
}

func NewCache(rdb *redis.Client, fetcher Fetcher, swrWindow, hardTTL, lockTTL time.Duration, log *zap.Logger) *Cache {
	if hardTTL <= 0 {
		hardTTL = hardTTLDefault
	}
	return &Cache{rdb: rdb, log: log, fetcher: fetcher, swrWindow: swrWindow, hardTTL: hardTTL, lockTTL: lockTTL}
}

// Get implements the reader half of §4.1: fresh entries return immediately;
// stale-but-present entries are returned while a refresh is kicked off in
// the background; a total miss fetches synchronously under lock, or spins
// on the cache for up to 2s before giving up.
func (c *Cache) Get(ctx context.Context, symbol string) (decimal.Decimal, error) {
	entry, err := c.read(ctx, symbol)
	if err == nil {
		age := entry.Age(time.Now())
		if age <= c.swrWindow {
			return entry.PriceUSD, nil
		}
		if age <= c.hardTTL {
			go c.refreshOne(context.Background(), symbol)
			return entry.PriceUSD, nil
		}
		// Past hard TTL: treated as absent.
	}

	acquired, token, lockErr := c.acquireLock(ctx, symbol)
	if lockErr != nil {
		return decimal.Zero, lockErr
	}
	if acquired {
		defer c.releaseLock(context.Background(), symbol, token)
		price, fetchErr := c.fetcher.FetchOne(ctx, symbol)
		if fetchErr != nil {
			return decimal.Zero, fmt.Errorf("fetch %s: %w", symbol, fetchErr)
		}
		if err := c.Upsert(ctx, symbol, price, model.PriceSourceREST); err != nil {
			c.log.Warn("upsert after synchronous fetch failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return price, nil
	}

	// Lock is held elsewhere; poll for up to 2s.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if entry, err := c.read(ctx, symbol); err == nil {
			return entry.PriceUSD, nil
		}
	}
	return decimal.Zero, ErrPriceUnavailable
}

func (c *Cache) refreshOne(ctx context.Context, symbol string) {
	acquired, token, err := c.acquireLock(ctx, symbol)
	if err != nil || !acquired {
		return
	}
	defer c.releaseLock(ctx, symbol, token)

	price, err := c.fetcher.FetchOne(ctx, symbol)
	if err != nil {
		c.log.Warn("background price refresh failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if err := c.Upsert(ctx, symbol, price, model.PriceSourceREST); err != nil {
		c.log.Warn("background price upsert failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (c *Cache) read(ctx context.Context, symbol string) (model.PriceCacheEntry, error) {
	raw, err := c.rdb.Get(ctx, keyPricePrefix+symbol).Bytes()
	if err != nil {
		return model.PriceCacheEntry{}, err
	}
	var entry model.PriceCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.PriceCacheEntry{}, err
	}
	return entry, nil
}

// Upsert writes a new price observation. Streaming writers should call this
// directly with source=ws after their own staleness/lag filtering (§4.1).
func (c *Cache) Upsert(ctx context.Context, symbol string, price decimal.Decimal, source model.PriceSource) error {
	entry := model.PriceCacheEntry{Symbol: symbol, PriceUSD: price, Ts: time.Now(), Source: source}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPricePrefix+symbol, raw, c.hardTTL).Err()
}

func (c *Cache) acquireLock(ctx context.Context, symbol string) (bool, string, error) {
	token, err := randomToken()
	if err != nil {
		return false, "", err
	}
	ok, err := c.rdb.SetNX(ctx, keyLockPrefix+symbol, token, c.lockTTL).Result()
	if err != nil {
		return false, "", err
	}
	return ok, token, nil
}

// releaseLock is a compare-and-delete: it only clears the lock if the token
// still matches the one this caller set, so a lock that already expired and
// was reacquired by someone else is left alone.
func (c *Cache) releaseLock(ctx context.Context, symbol, token string) {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	if err := c.rdb.Eval(ctx, script, []string{keyLockPrefix + symbol}, token).Err(); err != nil {
		c.log.Warn("release price lock failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
