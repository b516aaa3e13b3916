// Command backfill loads FIRMS CSV archive files (for example the yearly
// country downloads) into the fire point store. Rows go through the same
// normalization, deduplication, and insert-if-absent path as live ingestion,
// so re-running a backfill is harmless.
//
// Usage:
//
//	go run ./cmd/backfill -source MODIS_SP modis_2023_China.csv modis_2024_China.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/firms-fire-etl/internal/adapter/firms"
	"github.com/couchcryptid/firms-fire-etl/internal/config"
	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/pipeline"
	"github.com/couchcryptid/firms-fire-etl/internal/storage"
)

// summary tallies one backfill.
type summary struct {
	Files    int
	Rows     int
	Rejected int
	Unique   int
	Inserted int
	Skipped  int
}

func main() {
	if err := run(); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	sourceFlag := flag.String("source", string(domain.SourceVIIRSSNPPNRT), "FIRMS source product the files were exported from")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("at least one CSV file is required")
	}
	source, err := domain.ParseSource(*sourceFlag)
	if err != nil {
		return err
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	sum, err := backfill(ctx, store, source, flag.Args(), logger)
	if err != nil {
		return err
	}
	fmt.Printf("files=%d rows=%d rejected=%d unique=%d inserted=%d skipped=%d\n",
		sum.Files, sum.Rows, sum.Rejected, sum.Unique, sum.Inserted, sum.Skipped)
	return nil
}

// backfill deduplicates across all files before writing, so the first file
// listed wins when archives overlap.
func backfill(ctx context.Context, store pipeline.Store, source domain.Source, paths []string, logger *slog.Logger) (summary, error) {
	var (
		sum     summary
		records []domain.FireRecord
	)
	for _, path := range paths {
		rows, err := readCSV(path)
		if err != nil {
			return sum, err
		}
		sum.Files++
		sum.Rows += len(rows)

		for i, row := range rows {
			rec, err := domain.Normalize(row, source)
			if err != nil {
				sum.Rejected++
				logger.Debug("row rejected", "file", path, "row", i+2, "error", err)
				continue
			}
			records = append(records, rec)
		}
		logger.Info("file loaded", "file", path, "rows", len(rows))
	}

	unique := domain.Dedupe(records)
	sum.Unique = len(unique)

	res, err := store.UpsertMany(ctx, domain.Points(unique))
	sum.Inserted = res.Inserted
	sum.Skipped = res.Skipped
	if err != nil {
		return sum, fmt.Errorf("store fire points: %w", err)
	}
	return sum, nil
}

func readCSV(path string) ([]domain.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := firms.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}
