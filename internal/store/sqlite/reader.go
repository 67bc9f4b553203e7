package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sensortrend/internal/model"
)

// LatestSnapshot loads the newest snapshot of a dataset.
// Returns nil, nil if none exists.
func (s *Store) LatestSnapshot(ctx context.Context, dataset string) (*model.Table, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM dataset_snapshots
		WHERE name = ?
		ORDER BY id DESC LIMIT 1
	`, dataset).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

// RecentRuns returns up to limit journal entries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]model.TrendRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, dataset, column_name, version, window_length, poly_order,
		       points, cached, duration_us, created_at
		FROM trend_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.TrendRun
	for rows.Next() {
		var r model.TrendRun
		var cached int
		var durUS, created int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.Dataset, &r.Column, &r.Version,
			&r.WindowLength, &r.PolyOrder, &r.Points, &cached, &durUS, &created); err != nil {
			return nil, fmt.Errorf("sqlite scan run: %w", err)
		}
		r.Cached = cached == 1
		r.Duration = time.Duration(durUS) * time.Microsecond
		r.CreatedAt = time.UnixMilli(created).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
