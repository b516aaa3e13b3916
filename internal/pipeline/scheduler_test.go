package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
	"github.com/couchcryptid/firms-fire-etl/internal/pipeline"
)

type scriptedRunner struct {
	mu      sync.Mutex
	calls   int
	results []error
}

func (r *scriptedRunner) Run(context.Context) (pipeline.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var err error
	if r.calls <= len(r.results) {
		err = r.results[r.calls-1]
	}
	return pipeline.Result{RunID: "run", Inserted: r.calls}, err
}

func (r *scriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestScheduler_RunsImmediatelyThenOnEachTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	metrics := observability.NewMetricsForTesting()
	runner := &scriptedRunner{results: []error{errors.New("store down")}}
	s := pipeline.NewScheduler(runner, 10*time.Minute, clock, discardLogger(), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := s.LastResult()
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Error(t, s.CheckReadiness(ctx), "failed first run must not mark the service ready")
	last, _ := s.LastResult()
	assert.Equal(t, 1, last.Inserted)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRunning), 0)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Minute)

	require.Eventually(t, func() bool { return s.CheckReadiness(ctx) == nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, runner.Calls())
	last, _ = s.LastResult()
	assert.Equal(t, 2, last.Inserted)

	cancel()
	require.NoError(t, <-errCh)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestScheduler_IgnoresOverlappingRun(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	runner := &scriptedRunner{results: []error{domain.ErrRunInProgress}}
	s := pipeline.NewScheduler(runner, time.Minute, clock, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.Calls() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := s.LastResult()
	assert.False(t, ok)

	cancel()
	require.NoError(t, <-errCh)
}

func TestScheduler_NotReadyBeforeFirstRun(t *testing.T) {
	s := pipeline.NewScheduler(&scriptedRunner{}, time.Minute, clockwork.NewFakeClock(), discardLogger(), observability.NewMetricsForTesting())
	assert.Error(t, s.CheckReadiness(context.Background()))
	_, ok := s.LastResult()
	assert.False(t, ok)
}
