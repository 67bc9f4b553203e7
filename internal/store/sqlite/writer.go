package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"sensortrend/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/trend.db"
}

// Store keeps dataset snapshots and the trend run journal.
// Writes go through a single connection.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dataset_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT    NOT NULL,
			version    TEXT    NOT NULL,
			row_count  INTEGER NOT NULL,
			payload    BLOB    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_name
			ON dataset_snapshots(name, id DESC);

		CREATE TABLE IF NOT EXISTS trend_runs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT    NOT NULL,
			dataset       TEXT    NOT NULL,
			column_name   TEXT    NOT NULL,
			version       TEXT    NOT NULL,
			window_length INTEGER NOT NULL,
			poly_order    INTEGER NOT NULL,
			points        INTEGER NOT NULL,
			cached        INTEGER NOT NULL,
			duration_us   INTEGER NOT NULL,
			created_at    INTEGER NOT NULL
		);
	`)
	return err
}

// SaveSnapshot stores a compressed copy of t. A snapshot identical to the
// latest one for the same dataset is skipped, and only the three newest
// snapshots per dataset are kept.
func (s *Store) SaveSnapshot(ctx context.Context, t *model.Table) error {
	version := t.Version()

	var latest string
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM dataset_snapshots WHERE name = ? ORDER BY id DESC LIMIT 1`, t.Name,
	).Scan(&latest)
	if err == nil && latest == version {
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite latest snapshot version: %w", err)
	}

	payload, err := encodeSnapshot(t)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dataset_snapshots (name, version, row_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.Name, version, t.Len(), payload, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM dataset_snapshots
		WHERE name = ? AND id NOT IN (
			SELECT id FROM dataset_snapshots WHERE name = ? ORDER BY id DESC LIMIT 3
		)
	`, t.Name, t.Name); err != nil {
		return fmt.Errorf("sqlite prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	log.Printf("[sqlite] snapshot %s version=%s rows=%d bytes=%d", t.Name, version, t.Len(), len(payload))
	return nil
}

// RecordRun appends a trend computation to the journal.
func (s *Store) RecordRun(ctx context.Context, run model.TrendRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cached := 0
	if run.Cached {
		cached = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trend_runs
			(run_id, dataset, column_name, version, window_length, poly_order, points, cached, duration_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Dataset, run.Column, run.Version, run.WindowLength, run.PolyOrder,
		run.Points, cached, run.Duration.Microseconds(), run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
