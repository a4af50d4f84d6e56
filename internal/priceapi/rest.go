package priceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/model"
)

// RESTFetcher hits a single-symbol ticker endpoint with a plain
// http.Get+json.Decode call, generalized to any symbol against a
// Binance-shaped ticker endpoint.
type RESTFetcher struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewRESTFetcher(baseURL string, log *zap.Logger) *RESTFetcher {
	return &RESTFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *RESTFetcher) FetchOne(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?symbol=%sUSDT", f.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("ticker endpoint returned status %d", resp.StatusCode)
	}

	var out tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker response: %w", err)
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ticker price %q: %w", out.Price, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("ticker returned non-positive price for %s", symbol)
	}
	return price, nil
}

// Sweep runs FetchOne for every tracked symbol and upserts the result,
// intended to be called from a scheduler tick (§4.9).
func (f *RESTFetcher) Sweep(ctx context.Context, cache *Cache, symbols []string) {
	for _, symbol := range symbols {
		price, err := f.FetchOne(ctx, symbol)
		if err != nil {
			f.log.Warn("rest sweep fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err := cache.Upsert(ctx, symbol, price, model.PriceSourceREST); err != nil {
			f.log.Warn("rest sweep upsert failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}
