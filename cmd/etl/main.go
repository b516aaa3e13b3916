package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/firms-fire-etl/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/firms-fire-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/firms-fire-etl/internal/adapter/kafka"
	"github.com/couchcryptid/firms-fire-etl/internal/config"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
	"github.com/couchcryptid/firms-fire-etl/internal/pipeline"
	"github.com/couchcryptid/firms-fire-etl/internal/storage"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	once := flag.Bool("once", false, "run a single ingestion pass, print the counters and exit")
	flag.Parse()

	os.Exit(run(*once))
}

func run(once bool) int {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer store.Close()

	client := firms.NewClient(firms.ClientConfig{
		APIKey:  cfg.FIRMSAPIKey,
		BaseURL: cfg.FIRMSBaseURL,
		Timeout: cfg.FetchTimeout,
		Retries: cfg.FetchRetries,
	}, metrics, logger)

	// Publishing is feature-flagged via KAFKA_BROKERS.
	var publisher pipeline.Publisher
	if cfg.KafkaEnabled() {
		p := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = p
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	ingestor := pipeline.NewIngestor(pipeline.IngestConfig{
		Country:     cfg.Country,
		Sources:     cfg.Sources,
		MinLagDays:  cfg.MinLagDays,
		MaxLagDays:  cfg.MaxLagDays,
		Concurrency: cfg.FetchConcurrency,
		Delay:       cfg.FetchDelay,
	}, client, store, publisher, clock, logger, metrics)

	if once {
		return runOnce(ctx, ingestor)
	}

	scheduler := pipeline.NewScheduler(ingestor, cfg.IngestInterval, clock, logger, metrics)
	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:    cfg.HTTPAddr,
		Version: version,
		Ready:   readiness{store: store, scheduler: scheduler},
		Points:  store,
		Runs:    scheduler,
		Clock:   clock,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion schedule.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("ingestion run did not stop before shutdown timeout")
	}

	logger.Info("shutdown complete")
	return 0
}

func runOnce(ctx context.Context, ingestor *pipeline.Ingestor) int {
	res, err := ingestor.Run(ctx)
	fmt.Printf("run %s: pairs=%d failed_pairs=%d fetched=%d rejected=%d unique=%d inserted=%d skipped=%d duration=%s\n",
		res.RunID, res.Pairs, res.FailedPairs, res.Fetched, res.Rejected, res.Unique, res.Inserted, res.Skipped, res.Duration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestion failed: %v\n", err)
		return 1
	}
	return 0
}

// readiness requires a reachable store and at least one successful run.
type readiness struct {
	store     storage.Store
	scheduler *pipeline.Scheduler
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return err
	}
	return r.scheduler.CheckReadiness(ctx)
}
