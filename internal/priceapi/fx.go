package priceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	keyFXUSDIDR  = "fx:usdidr"
	fxFreshness  = 24 * time.Hour
	fxHTTPTimeout = 5 * time.Second
)

// FXRate tracks the USD/IDR rate described in §4.1: refreshed on demand
// against a public FX endpoint, with a 24h freshness policy and a stored
// default fallback when the endpoint is unreachable.
type FXRate struct {
	rdb         *redis.Client
	endpoint    string
	client      *http.Client
	defaultRate decimal.Decimal
	log         *zap.Logger
}

func NewFXRate(rdb *redis.Client, endpoint string, defaultRate decimal.Decimal, log *zap.Logger) *FXRate {
	return &FXRate{
		rdb:         rdb,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: fxHTTPTimeout},
		defaultRate: defaultRate,
		log:         log,
	}
}

type fxEntry struct {
	Rate decimal.Decimal `json:"rate"`
	Ts   time.Time       `json:"ts"`
}

// Get returns the current USD/IDR rate, refreshing from the endpoint when
// the cached entry is missing or older than 24h. It never returns an error
// to the caller: a failed refresh falls back to the stale cached value, or
// to defaultRate if nothing is cached yet.
func (f *FXRate) Get(ctx context.Context) decimal.Decimal {
	entry, err := f.read(ctx)
	if err == nil && time.Since(entry.Ts) < fxFreshness {
		return entry.Rate
	}

	fresh, fetchErr := f.fetch(ctx)
	if fetchErr != nil {
		f.log.Warn("fx refresh failed, falling back", zap.Error(fetchErr))
		if err == nil {
			return entry.Rate
		}
		return f.defaultRate
	}

	if writeErr := f.write(ctx, fresh); writeErr != nil {
		f.log.Warn("fx cache write failed", zap.Error(writeErr))
	}
	return fresh
}

func (f *FXRate) read(ctx context.Context) (fxEntry, error) {
	raw, err := f.rdb.Get(ctx, keyFXUSDIDR).Bytes()
	if err != nil {
		return fxEntry{}, err
	}
	var entry fxEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fxEntry{}, err
	}
	return entry, nil
}

func (f *FXRate) write(ctx context.Context, rate decimal.Decimal) error {
	raw, err := json.Marshal(fxEntry{Rate: rate, Ts: time.Now()})
	if err != nil {
		return err
	}
	return f.rdb.Set(ctx, keyFXUSDIDR, raw, 0).Err()
}

func (f *FXRate) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fx endpoint returned status %d", resp.StatusCode)
	}

	var out struct {
		Rates struct {
			IDR decimal.Decimal `json:"IDR"`
		} `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode fx response: %w", err)
	}
	if out.Rates.IDR.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("fx endpoint returned non-positive IDR rate")
	}
	return out.Rates.IDR, nil
}
