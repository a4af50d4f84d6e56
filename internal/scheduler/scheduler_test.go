package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSchedulerRunsJobImmediatelyAndOnTick(t *testing.T) {
	s := New(zap.NewNop())
	var calls int32
	s.Register(Job{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}
}

func TestSchedulerSurvivesJobError(t *testing.T) {
	s := New(zap.NewNop())
	var calls int32
	s.Register(Job{
		Name:     "failing",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return context.DeadlineExceeded
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected the job to keep running despite errors, got %d calls", calls)
	}
}
