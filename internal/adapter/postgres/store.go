// Package postgres implements the fire point store on PostgreSQL using a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
)

const (
	defaultBatchSize = 100
	defaultMaxConns  = 4
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fire_points (
		id   BIGSERIAL PRIMARY KEY,
		lat  DOUBLE PRECISION NOT NULL,
		lng  DOUBLE PRECISION NOT NULL,
		time TIMESTAMP NOT NULL,
		CONSTRAINT unique_location_time UNIQUE (lat, lng, time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fire_points_time ON fire_points (time)`,
}

const insertPoint = `INSERT INTO fire_points (lat, lng, time) VALUES ($1, $2, $3)
	ON CONFLICT (lat, lng, time) DO NOTHING
	RETURNING id`

// Store persists fire points in PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	logger    *slog.Logger

	mu    sync.Mutex
	ready bool
}

// Open creates a connection pool for dsn. Connections are established lazily,
// and the table is provisioned on first use.
func Open(ctx context.Context, dsn string, batchSize int, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > defaultMaxConns {
		cfg.MaxConns = defaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable(fmt.Errorf("create pool: %w", err))
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{pool: pool, batchSize: batchSize, logger: logger}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('fire_points') IS NOT NULL`).Scan(&exists); err != nil {
		return unavailable(fmt.Errorf("inspect schema: %w", err))
	}

	if !exists {
		s.logger.Warn("fire point table missing, creating", "table", "fire_points")
		for _, stmt := range schema {
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				return unavailable(fmt.Errorf("create schema: %w", err))
			}
		}
	}
	s.ready = true
	return nil
}

// UpsertMany inserts points that are not stored yet, one transaction per
// batchSize rows. Conflicting points are counted as skipped.
func (s *Store) UpsertMany(ctx context.Context, points []domain.FirePoint) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if err := s.ensureSchema(ctx); err != nil {
		return res, err
	}

	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		if err := s.upsertBatch(ctx, points[start:end], &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Store) upsertBatch(ctx context.Context, batch []domain.FirePoint, res *domain.UpsertResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable(fmt.Errorf("begin batch: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	b := &pgx.Batch{}
	for _, p := range batch {
		b.Queue(insertPoint, p.Lat, p.Lng, p.Time.UTC())
	}

	br := tx.SendBatch(ctx, b)
	stored := make([]domain.FirePoint, 0, len(batch))
	skipped := 0
	for _, p := range batch {
		err := br.QueryRow().Scan(&p.ID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			skipped++
		case err != nil:
			_ = br.Close()
			return fmt.Errorf("insert fire point %s: %w", p.Key(), err)
		default:
			stored = append(stored, p)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(fmt.Errorf("commit batch: %w", err))
	}
	res.Inserted += len(stored)
	res.Skipped += skipped
	res.Stored = append(res.Stored, stored...)
	return nil
}

// Latest returns up to limit points ordered by observation time, newest first.
func (s *Store) Latest(ctx context.Context, limit int) ([]domain.FirePoint, error) {
	if limit < 1 {
		return nil, fmt.Errorf("latest fire points: limit %d must be positive", limit)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, lat, lng, time
		FROM fire_points
		ORDER BY time DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable(fmt.Errorf("query latest: %w", err))
	}
	defer rows.Close()

	var out []domain.FirePoint
	for rows.Next() {
		var p domain.FirePoint
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.Time); err != nil {
			return nil, fmt.Errorf("scan fire point: %w", err)
		}
		p.Time = p.Time.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats reports the row count and the newest observation time.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	if err := s.ensureSchema(ctx); err != nil {
		return stats, err
	}

	var latest *time.Time
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), MAX(time) FROM fire_points`).Scan(&stats.Count, &latest)
	if err != nil {
		return stats, unavailable(fmt.Errorf("query stats: %w", err))
	}
	if latest != nil {
		stats.Latest = latest.UTC()
	}
	return stats, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
