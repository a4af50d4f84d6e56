package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// JobQueue is a Redis-list-backed at-most-once job queue. The payout
// executor must run exactly once per dequeue (§4.5: "attempts=1, no
// automatic retry"), so this is a push queue: BRPOP blocks for work
// instead of scanning on a ticker.
type JobQueue struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewJobQueue(rdb *redis.Client, log *zap.Logger) *JobQueue {
	return &JobQueue{rdb: rdb, log: log}
}

const (
	queuePayout         = "queue:payout"
	queueReferral       = "queue:referral"
	queueOrderExpiry    = "queue:order-expiry"
	orderExpiryAttempts = 3
)

type payoutJob struct {
	OrderID uuid.UUID `json:"order_id"`
}

type referralJob struct {
	UserID int64 `json:"user_id"`
}

func (q *JobQueue) EnqueuePayout(ctx context.Context, orderID uuid.UUID) error {
	raw, err := json.Marshal(payoutJob{OrderID: orderID})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, queuePayout, raw).Err()
}

func (q *JobQueue) EnqueueReferralValidation(ctx context.Context, userID int64) error {
	raw, err := json.Marshal(referralJob{UserID: userID})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, queueReferral, raw).Err()
}

// EnqueueOrderExpiry schedules the per-order single-expiry job (§4.9) to
// fire at fireAt, a Redis sorted set keyed by fire time rather than a plain
// list, since this job is delayed rather than immediately runnable.
func (q *JobQueue) EnqueueOrderExpiry(ctx context.Context, orderID uuid.UUID, fireAt time.Time) error {
	return q.rdb.ZAdd(ctx, queueOrderExpiry, redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: orderID.String(),
	}).Err()
}

// RunPayoutConsumers starts concurrency workers all BRPOP-ing the same
// payout queue, so payouts across distinct chains run in parallel; the hot
// wallet manager's per-chain lock is what keeps two sends on the same chain
// from racing, not the queue. Blocks until ctx is cancelled.
func (q *JobQueue) RunPayoutConsumers(ctx context.Context, concurrency int, process func(context.Context, uuid.UUID) error) {
	if concurrency < 1 {
		concurrency = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.RunPayoutConsumer(ctx, process)
		}()
	}
	wg.Wait()
}

// RunPayoutConsumer blocks popping payout jobs and invoking process exactly
// once per job; it never requeues on failure, matching §4.5's "automatic
// retry of a blockchain send is forbidden".
func (q *JobQueue) RunPayoutConsumer(ctx context.Context, process func(context.Context, uuid.UUID) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.rdb.BRPop(ctx, 5*time.Second, queuePayout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("payout queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var job payoutJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.Error("payout job unmarshal failed", zap.Error(err))
			continue
		}

		if err := process(ctx, job.OrderID); err != nil {
			q.log.Error("payout job failed", zap.String("order_id", job.OrderID.String()), zap.Error(err))
		}
	}
}

// RunReferralConsumer is a best-effort, retryable consumer: unlike payouts,
// referral validation is idempotent, so a failed pop is simply logged and
// the job dropped to the 10-minute sweep for recovery.
func (q *JobQueue) RunReferralConsumer(ctx context.Context, process func(context.Context, int64) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.rdb.BRPop(ctx, 5*time.Second, queueReferral).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("referral queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var job referralJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.Error("referral job unmarshal failed", zap.Error(err))
			continue
		}

		if err := process(ctx, job.UserID); err != nil {
			q.log.Error("referral job failed", zap.Int64("user_id", job.UserID), zap.Error(err))
		}
	}
}

// RunOrderExpiryConsumer polls the delayed order-expiry set for members due
// by now, claims each with a ZRem (so a concurrent poller can't double-run
// it), and retries process up to orderExpiryAttempts times with exponential
// backoff (1s, then 2s) before giving up — at which point the 5-minute batch
// sweep is the fallback net.
func (q *JobQueue) RunOrderExpiryConsumer(ctx context.Context, process func(context.Context, uuid.UUID) error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		due, err := q.rdb.ZRangeByScore(ctx, queueOrderExpiry, &redis.ZRangeBy{
			Min: "-inf", Max: fmt.Sprintf("%d", time.Now().Unix()), Count: 50,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("order expiry queue scan failed", zap.Error(err))
			continue
		}

		for _, member := range due {
			removed, err := q.rdb.ZRem(ctx, queueOrderExpiry, member).Result()
			if err != nil || removed == 0 {
				continue
			}
			orderID, err := uuid.Parse(member)
			if err != nil {
				q.log.Error("order expiry job has invalid order id", zap.String("member", member), zap.Error(err))
				continue
			}
			q.runOrderExpiryWithRetry(ctx, process, orderID)
		}
	}
}

func (q *JobQueue) runOrderExpiryWithRetry(ctx context.Context, process func(context.Context, uuid.UUID) error, orderID uuid.UUID) {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= orderExpiryAttempts; attempt++ {
		if err := process(ctx, orderID); err != nil {
			lastErr = err
			q.log.Warn("order expiry attempt failed",
				zap.String("order_id", orderID.String()), zap.Int("attempt", attempt), zap.Error(err))
			if attempt < orderExpiryAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
			continue
		}
		return
	}
	q.log.Error("order expiry exhausted retries, deferring to batch sweep",
		zap.String("order_id", orderID.String()), zap.Error(lastErr))
}
