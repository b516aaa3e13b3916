package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
)

// Runner performs a single ingestion run.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler repeats ingestion runs on a fixed interval until its context is cancelled.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	ready   atomic.Bool
	mu      sync.RWMutex
	last    Result
	hasLast bool
}

// NewScheduler creates a Scheduler that calls runner every interval.
func NewScheduler(runner Runner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no successful ingestion run yet")
	}
	return nil
}

// LastResult returns the summary of the most recent finished run.
func (s *Scheduler) LastResult() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Run executes one run immediately and then one per tick. Runs are sequential,
// so a slow run delays the next tick instead of overlapping it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	res, err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, domain.ErrRunInProgress) {
		s.logger.Warn("previous run still active, skipping tick")
		return
	}

	s.mu.Lock()
	s.last = res
	s.hasLast = true
	s.mu.Unlock()

	if err == nil {
		s.ready.Store(true)
	}
}
