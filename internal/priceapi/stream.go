package priceapi

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kriptapay/payout-engine/internal/model"
)

// streamMetrics is a rolling 60s window over the stream's health: how many
// ticks landed in the cache, how many tracked-symbol ticks were dropped as
// stale or invalid (ticks for untracked symbols are skipped uncounted), how
// many hard errors occurred, and the worst lag observed between
// an event's own timestamp and the time it was processed.
type streamMetrics struct {
	mu      sync.Mutex
	updates int
	drops   int
	errors  int
	maxLag  time.Duration
}

func (m *streamMetrics) recordUpdate(lag time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if lag > m.maxLag {
		m.maxLag = lag
	}
}

func (m *streamMetrics) recordDrop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops++
}

func (m *streamMetrics) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// snapshotAndReset returns the window's counters and starts a fresh window.
func (m *streamMetrics) snapshotAndReset() (updates, drops, errs int, maxLag time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updates, drops, errs, maxLag = m.updates, m.drops, m.errors, m.maxLag
	m.updates, m.drops, m.errors, m.maxLag = 0, 0, 0, 0
	return
}

// tickerEvent is the subset of a Binance-shaped miniTicker stream entry this
// writer cares about.
type tickerEvent struct {
	Symbol    string `json:"s"`
	Price     string `json:"c"`
	EventTime int64  `json:"E"`
}

// StreamWriter keeps a long-lived websocket connection open and pushes every
// tick straight into the cache, with a watchdog that reconnects on idle
// streams. Connection handling is grounded on the dial/read loop in
// bench/posloader/main.go (websocket.Dial + conn.Read).
type StreamWriter struct {
	url           string
	cache         *Cache
	symbols       map[string]bool
	log           *zap.Logger
	watchdogIdle  time.Duration
	reconnectBase time.Duration
	staleAfter    time.Duration
	metrics       streamMetrics
}

func NewStreamWriter(url string, cache *Cache, symbols []string, watchdogIdle, reconnectBase time.Duration, log *zap.Logger) *StreamWriter {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = true
	}
	return &StreamWriter{
		url:           url,
		cache:         cache,
		symbols:       set,
		log:           log,
		watchdogIdle:  watchdogIdle,
		reconnectBase: reconnectBase,
		staleAfter:    5 * time.Second,
	}
}

// Run connects and reconnects forever until ctx is cancelled. Each
// connection attempt backs off exponentially from reconnectBase, capped at
// one minute.
func (w *StreamWriter) Run(ctx context.Context) {
	backoff := w.reconnectBase
	const maxBackoff = time.Minute

	metricsTicker := time.NewTicker(60 * time.Second)
	defer metricsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-metricsTicker.C:
				updates, drops, errs, maxLag := w.metrics.snapshotAndReset()
				w.log.Info("price stream 60s window",
					zap.Int("updates", updates), zap.Int("drops", drops),
					zap.Int("errors", errs), zap.Duration("max_lag", maxLag))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lastTick, err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.metrics.recordError()
			w.log.Warn("price stream disconnected", zap.Error(err), zap.Duration("backoff", backoff))
		} else {
			w.log.Warn("price stream idle watchdog fired", zap.Time("last_tick", lastTick))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce opens one connection and drives it until it errors, the watchdog
// deadline passes with no ticks, or ctx is cancelled. It returns the time of
// the last observed tick and a non-nil error if the read loop itself failed.
func (w *StreamWriter) runOnce(ctx context.Context) (time.Time, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, w.url, nil)
	cancel()
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "reconnect")

	msgCh := make(chan []byte, 64)
	errCh := make(chan error, 1)

	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()

	go func() {
		for {
			_, data, err := conn.Read(readCtx)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- data:
			case <-readCtx.Done():
				return
			}
		}
	}()

	lastTick := time.Now()
	watchdog := time.NewTicker(w.watchdogIdle)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return lastTick, nil
		case err := <-errCh:
			return lastTick, err
		case <-watchdog.C:
			if time.Since(lastTick) >= w.watchdogIdle {
				return lastTick, nil
			}
		case data := <-msgCh:
			lastTick = time.Now()
			w.handleMessage(ctx, data)
		}
	}
}

func (w *StreamWriter) handleMessage(ctx context.Context, data []byte) {
	var events []tickerEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single tickerEvent
		if err := json.Unmarshal(data, &single); err != nil {
			w.metrics.recordError()
			return
		}
		events = []tickerEvent{single}
	}

	for _, evt := range events {
		symbol := strings.TrimSuffix(strings.ToUpper(evt.Symbol), "USDT")
		if !w.symbols[symbol] {
			continue
		}
		eventTime := time.UnixMilli(evt.EventTime)
		lag := time.Since(eventTime)
		if lag > w.staleAfter {
			w.metrics.recordDrop()
			continue
		}
		price, err := decimal.NewFromString(evt.Price)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			w.metrics.recordDrop()
			continue
		}
		if err := w.cache.Upsert(ctx, symbol, price, model.PriceSourceWS); err != nil {
			w.log.Warn("stream upsert failed", zap.String("symbol", symbol), zap.Error(err))
			w.metrics.recordError()
			continue
		}
		w.metrics.recordUpdate(lag)
	}
}
