// Package sqlite implements the fire point store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
)

const (
	tableName        = "fire_points"
	defaultBatchSize = 100
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fire_points (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		lat  REAL NOT NULL,
		lng  REAL NOT NULL,
		time TIMESTAMP NOT NULL,
		CONSTRAINT unique_location_time UNIQUE (lat, lng, time)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_fire_points_time ON fire_points(time);`,
}

const insertPoint = `INSERT INTO fire_points (lat, lng, time) VALUES (?, ?, ?)
	ON CONFLICT (lat, lng, time) DO NOTHING`

// Store persists fire points in SQLite. Timestamps are stored as
// "YYYY-MM-DD HH:MM:SS" UTC text so ordering and uniqueness are exact.
type Store struct {
	db        *sql.DB
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	ready   bool
	creates int
}

// Open connects to the database at dsn. The table is provisioned lazily on first use.
func Open(dsn string, batchSize int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// ensureSchema creates the table on first use if it does not exist yet.
func (s *Store) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, tableName).Scan(&n)
	if err != nil {
		return unavailable(fmt.Errorf("inspect schema: %w", err))
	}

	if n == 0 {
		s.logger.Warn("fire point table missing, creating", "table", tableName)
		for _, stmt := range schema {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return unavailable(fmt.Errorf("create schema: %w", err))
			}
		}
		s.creates++
	}
	s.ready = true
	return nil
}

// UpsertMany inserts points that are not stored yet, committing every
// batchSize rows. Points that collide with an existing (lat, lng, time) are
// counted as skipped. On error, batches committed before the failure are
// reflected in the returned result.
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Errorf("begin batch: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertPoint)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	stored := make([]domain.FirePoint, 0, len(batch))
	skipped := 0
	for _, p := range batch {
		r, err := stmt.ExecContext(ctx, p.Lat, p.Lng, formatTime(p.Time))
		if err != nil {
			return fmt.Errorf("insert fire point %s: %w", p.Key(), err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			skipped++
			continue
		}
		if id, err := r.LastInsertId(); err == nil {
			p.ID = id
		}
		stored = append(stored, p)
	}

	if err := tx.Commit(); err != nil {
		return unavailable(fmt.Errorf("commit batch: %w", err))
	}
	res.Inserted += len(stored)
	res.Skipped += skipped
	res.Stored = append(res.Stored, stored...)
	return nil
}

// Latest returns up to limit points ordered by observation time, newest first.
// limit must be positive; SQLite treats a negative LIMIT as unbounded.
func (s *Store) Latest(ctx context.Context, limit int) ([]domain.FirePoint, error) {
	if limit < 1 {
		return nil, fmt.Errorf("latest fire points: limit %d must be positive", limit)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lat, lng, strftime('%Y-%m-%d %H:%M:%S', time)
		FROM fire_points
		ORDER BY time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable(fmt.Errorf("query latest: %w", err))
	}
	defer rows.Close()

	var out []domain.FirePoint
	for rows.Next() {
		var (
			p  domain.FirePoint
			ts string
		)
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &ts); err != nil {
			return nil, fmt.Errorf("scan fire point: %w", err)
		}
		if p.Time, err = parseTime(ts); err != nil {
			return nil, err
		}
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

	var latest string
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(strftime('%Y-%m-%d %H:%M:%S', MAX(time)), '')
		FROM fire_points`).Scan(&stats.Count, &latest)
	if err != nil {
		return stats, unavailable(fmt.Errorf("query stats: %w", err))
	}
	if latest != "" {
		if stats.Latest, err = parseTime(latest); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(domain.TimestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
