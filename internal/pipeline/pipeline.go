package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
)

// Fetcher retrieves the raw rows for one (country, date, source) pair.
// A failed fetch returns no rows and an error that only describes the failure.
type Fetcher interface {
	Fetch(ctx context.Context, country, date string, source domain.Source) ([]domain.RawRow, error)
}

// Store persists fire points idempotently.
type Store interface {
	UpsertMany(ctx context.Context, points []domain.FirePoint) (domain.UpsertResult, error)
}

// Publisher forwards newly stored points downstream.
type Publisher interface {
	Publish(ctx context.Context, points []domain.FirePoint) error
}

// IngestConfig controls which pairs a run fetches and how fast.
type IngestConfig struct {
	Country     string
	Sources     []domain.Source
	MinLagDays  int
	MaxLagDays  int
	Concurrency int           // parallel fetch workers, at least 1
	Delay       time.Duration // minimum spacing between requests of one worker
}

// Result summarizes one ingestion run.
type Result struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Pairs       int           `json:"pairs"`
	FailedPairs int           `json:"failed_pairs"`
	Fetched     int           `json:"fetched"`
	Rejected    int           `json:"rejected"`
	Unique      int           `json:"unique"`
	Inserted    int           `json:"inserted"`
	Skipped     int           `json:"skipped"`
}

type pair struct {
	date   string
	source domain.Source
}

// Ingestor runs the fetch, normalize, dedupe, store cycle over the query window.
type Ingestor struct {
	cfg       IngestConfig
	fetcher   Fetcher
	store     Store
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	running sync.Mutex
}

// NewIngestor creates an Ingestor. publisher may be nil.
func NewIngestor(cfg IngestConfig, f Fetcher, s Store, p Publisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ingestor{
		cfg:       cfg,
		fetcher:   f,
		store:     s,
		publisher: p,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run performs one ingestion run. Fetch and row failures are absorbed and
// counted; only store failures (wrapping domain.ErrStoreUnavailable) and
// cancellation are returned. A second call while a run is active returns
// domain.ErrRunInProgress.
func (in *Ingestor) Run(ctx context.Context) (Result, error) {
	if !in.running.TryLock() {
		return Result{}, domain.ErrRunInProgress
	}
	defer in.running.Unlock()

	start := in.clock.Now()
	res := Result{RunID: uuid.NewString(), StartedAt: start.UTC()}
	logger := in.logger.With("run_id", res.RunID)

	pairs := in.pairs(start)
	res.Pairs = len(pairs)
	logger.Info("ingestion run started", "pairs", len(pairs), "country", in.cfg.Country)

	slots, failed, err := in.fetchAll(ctx, logger, pairs)
	res.FailedPairs = failed
	if err != nil {
		return in.finish(logger, res, start, fmt.Errorf("fetch fire data: %w", err))
	}

	records, fetched, rejected := normalizeSlots(slots, pairs, logger, in.metrics)
	res.Fetched = fetched
	res.Rejected = rejected

	unique := domain.Dedupe(records)
	res.Unique = len(unique)
	in.metrics.RecordsUnique.Add(float64(len(unique)))

	storeStart := in.clock.Now()
	up, err := in.store.UpsertMany(ctx, domain.Points(unique))
	in.metrics.StoreBatchDuration.Observe(in.clock.Since(storeStart).Seconds())
	res.Inserted = up.Inserted
	res.Skipped = up.Skipped
	in.metrics.PointsInserted.Add(float64(up.Inserted))
	in.metrics.PointsSkipped.Add(float64(up.Skipped))
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return in.finish(logger, res, start, fmt.Errorf("store fire points: %w", err))
	}

	in.publish(ctx, logger, up.Stored)
	return in.finish(logger, res, start, nil)
}

// pairs enumerates the query window date-major, source-minor.
func (in *Ingestor) pairs(now time.Time) []pair {
	dates := domain.QueryDates(now, in.cfg.MinLagDays, in.cfg.MaxLagDays)
	out := make([]pair, 0, len(dates)*len(in.cfg.Sources))
	for _, d := range dates {
		for _, s := range in.cfg.Sources {
			out = append(out, pair{date: domain.FormatDate(d), source: s})
		}
	}
	return out
}

// fetchAll fetches every pair into the slot with the pair's index so
// aggregation order never depends on completion order. It returns the number
// of failed pairs and an error only when ctx is cancelled.
func (in *Ingestor) fetchAll(ctx context.Context, logger *slog.Logger, pairs []pair) ([][]domain.RawRow, int, error) {
	slots := make([][]domain.RawRow, len(pairs))
	failed := make([]bool, len(pairs))

	jobs := make(chan int, len(pairs))
	for i := range pairs {
		jobs <- i
	}
	close(jobs)

	workers := min(in.cfg.Concurrency, max(len(pairs), 1))
	var g errgroup.Group
	g.SetLimit(workers)
	for range workers {
		g.Go(func() error {
			limiter := newLimiter(in.cfg.Delay)
			for i := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				p := pairs[i]
				rows, err := in.fetcher.Fetch(ctx, in.cfg.Country, p.date, p.source)
				if err != nil {
					failed[i] = true
					logger.Warn("pair skipped", "date", p.date, "source", string(p.source), "error", err)
					continue
				}
				slots[i] = rows
			}
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return slots, n, err
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func (in *Ingestor) publish(ctx context.Context, logger *slog.Logger, points []domain.FirePoint) {
	if in.publisher == nil || len(points) == 0 {
		return
	}
	if err := in.publisher.Publish(ctx, points); err != nil {
		in.metrics.PublishErrors.Inc()
		logger.Warn("publish fire points failed", "error", err, "count", len(points))
	}
}

func (in *Ingestor) finish(logger *slog.Logger, res Result, start time.Time, err error) (Result, error) {
	res.Duration = in.clock.Since(start)
	in.metrics.RunDuration.Observe(res.Duration.Seconds())

	attrs := []any{
		"pairs", res.Pairs,
		"failed_pairs", res.FailedPairs,
		"fetched", res.Fetched,
		"rejected", res.Rejected,
		"unique", res.Unique,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"duration", res.Duration,
	}

	switch {
	case err == nil:
		in.metrics.RunsTotal.WithLabelValues("success").Inc()
		in.metrics.LastSuccessTimestamp.Set(float64(in.clock.Now().Unix()))
		logger.Info("ingestion run complete", attrs...)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		in.metrics.RunsTotal.WithLabelValues("canceled").Inc()
		logger.Info("ingestion run canceled", attrs...)
	default:
		in.metrics.RunsTotal.WithLabelValues("error").Inc()
		logger.Error("ingestion run failed", append(attrs, "error", err)...)
	}
	return res, err
}
