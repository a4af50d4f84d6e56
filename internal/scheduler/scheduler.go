// Package scheduler runs the recurring jobs of §4.9 — price refresh,
// inventory sync, the order expiry sweep, the referral sweep, and the
// voucher expiry sweep — each on its own ticker, generalized into one
// registrar instead of one bespoke worker type per job.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one recurring unit of work. Run is invoked on every tick; a
// returned error is logged but never stops the ticker — a single bad tick
// must not take down the whole job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
	log  *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{log: log}
}

func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per registered job and blocks until ctx is
// done. Each job runs once immediately, then on its own ticker.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.runLoop(ctx, job)
	}
	<-ctx.Done()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	s.log.Info("scheduler job started", zap.String("job", job.Name), zap.Duration("interval", job.Interval))

	s.tick(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		s.log.Error("scheduler job failed", zap.String("job", job.Name), zap.Error(err))
	}
}
