// Package storage selects the fire point store backend named in configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/firms-fire-etl/internal/adapter/postgres"
	"github.com/couchcryptid/firms-fire-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/firms-fire-etl/internal/config"
	"github.com/couchcryptid/firms-fire-etl/internal/domain"
)

// Store is the full contract shared by every backend.
type Store interface {
	UpsertMany(ctx context.Context, points []domain.FirePoint) (domain.UpsertResult, error)
	Latest(ctx context.Context, limit int) ([]domain.FirePoint, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open returns the backend selected by cfg.StoreDriver. On error the
// returned Store is a nil interface.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	logger = logger.With("driver", cfg.StoreDriver)
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DatabaseURL, cfg.BatchSize, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.BatchSize, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
