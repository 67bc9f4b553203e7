package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the trend engine from concrete storage (Redis,
// SQLite). Every port is optional: the engine runs with any of them nil.

// ResultCache memoizes smoothed series by cache key.
type ResultCache interface {
	// GetTrend returns the cached series and true on a hit. Backend errors
	// are reported as misses.
	GetTrend(ctx context.Context, key string) ([]float64, bool)

	// PutTrend stores a series under key.
	PutTrend(ctx context.Context, key string, values []float64) error
}

// RunJournal keeps an append-only record of trend computations.
type RunJournal interface {
	RecordRun(ctx context.Context, run TrendRun) error

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]TrendRun, error)
}

// SnapshotStore persists cleaned tables so a dataset can be served when its
// source is unreachable.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, t *Table) error

	// LatestSnapshot loads the most recent snapshot of a dataset.
	// Returns nil, nil if no snapshot exists.
	LatestSnapshot(ctx context.Context, dataset string) (*Table, error)
}

// TrendRun is one journal entry.
type TrendRun struct {
	ID           int64         `json:"id"`
	RunID        string        `json:"run_id"`
	Dataset      string        `json:"dataset"`
	Column       string        `json:"column"`
	Version      string        `json:"version"`
	WindowLength int           `json:"window_length"`
	PolyOrder    int           `json:"poly_order"`
	Points       int           `json:"points"`
	Cached       bool          `json:"cached"`
	Duration     time.Duration `json:"duration_ns"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ParamStore remembers the last parameters chosen for a dataset column.
type ParamStore interface {
	SaveParams(ctx context.Context, dataset, column string, window, order int) error

	// LoadParams returns ok=false when nothing was saved.
	LoadParams(ctx context.Context, dataset, column string) (window, order int, ok bool)
}
