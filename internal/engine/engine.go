// Package engine holds the loaded datasets of a trend server and runs
// smoothing requests against them.
//
// Datasets are loaded once at startup (LoadAll) and only replaced by an
// explicit Reload. Every Compute re-runs the stateless filter, optionally
// short-circuited by a result cache keyed on the dataset content version.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"sensortrend/internal/dataset"
	"sensortrend/internal/metrics"
	"sensortrend/internal/model"
)

// Deps are the optional collaborators of a Service. Any field may be nil.
type Deps struct {
	Cache     model.ResultCache
	Journal   model.RunJournal
	Snapshots model.SnapshotStore
	Fetcher   dataset.Fetcher
	Metrics   *metrics.Metrics
}

// DatasetInfo describes a loaded dataset.
type DatasetInfo struct {
	Name          string    `json:"name"`
	Rows          int       `json:"rows"`
	TimeColumn    string    `json:"time_column"`
	Columns       []string  `json:"columns"`
	DefaultColumn string    `json:"default_column"`
	Version       string    `json:"version"`
	Origin        string    `json:"origin"` // file, snapshot or memory
	LoadedAt      time.Time `json:"loaded_at"`
}

type entry struct {
	table *model.Table
	info  DatasetInfo
}

// Service is safe for concurrent use. Loaded tables are never mutated;
// a reload swaps in a new table.
type Service struct {
	specs  []dataset.Spec
	deps   Deps
	tracer trace.Tracer

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates a Service for the given manifest entries. Nothing is loaded
// until LoadAll.
func New(specs []dataset.Spec, deps Deps) *Service {
	return &Service{
		specs:   specs,
		deps:    deps,
		tracer:  otel.Tracer("sensortrend/internal/engine"),
		entries: make(map[string]*entry),
	}
}

// LoadAll loads every manifest dataset. A dataset whose source fails is
// restored from its latest snapshot when one exists. LoadAll fails only if
// no dataset at all could be loaded.
func (s *Service) LoadAll(ctx context.Context) (int, error) {
	var errs []error
	loaded := 0
	for _, spec := range s.specs {
		info, err := s.load(ctx, spec, true)
		if err != nil {
			log.Printf("[engine] dataset %s unavailable: %v", spec.Name, err)
			errs = append(errs, err)
			continue
		}
		loaded++
		log.Printf("[engine] dataset %s loaded from %s: %d rows, %d columns, version %s",
			info.Name, info.Origin, info.Rows, len(info.Columns), info.Version)
	}
	if loaded == 0 && len(s.specs) > 0 {
		return 0, fmt.Errorf("no dataset could be loaded: %w", errors.Join(errs...))
	}
	return loaded, nil
}

// Reload re-reads one manifest dataset from its source. On failure the
// previously loaded table stays in place.
func (s *Service) Reload(ctx context.Context, name string) (DatasetInfo, error) {
	for _, spec := range s.specs {
		if spec.Name == name {
			return s.load(ctx, spec, false)
		}
	}
	return DatasetInfo{}, fmt.Errorf("%w: %q has no source to reload", ErrUnknownDataset, name)
}

func (s *Service) load(ctx context.Context, spec dataset.Spec, allowSnapshot bool) (DatasetInfo, error) {
	ctx, span := s.tracer.Start(ctx, "engine.load")
	defer span.End()

	t, err := dataset.Load(ctx, spec, s.deps.Fetcher)
	origin := "file"
	if err != nil {
		if !allowSnapshot || s.deps.Snapshots == nil {
			s.deps.Metrics.ObserveDataset(spec.Name, "failed", 0)
			span.RecordError(err)
			return DatasetInfo{}, fmt.Errorf("load %s: %w", spec.Name, err)
		}
		snap, serr := s.deps.Snapshots.LatestSnapshot(ctx, spec.Name)
		if serr != nil || snap == nil {
			s.deps.Metrics.ObserveDataset(spec.Name, "failed", 0)
			span.RecordError(err)
			return DatasetInfo{}, fmt.Errorf("load %s: %w (no snapshot: %v)", spec.Name, err, serr)
		}
		log.Printf("[engine] %s: source failed (%v), serving snapshot", spec.Name, err)
		t, origin = snap, "snapshot"
	} else if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.SaveSnapshot(ctx, t); err != nil {
			log.Printf("[engine] %s: snapshot failed: %v", spec.Name, err)
		}
	}

	s.deps.Metrics.ObserveDataset(spec.Name, origin, t.Len())
	return s.put(t, spec.DefaultColumn, origin), nil
}

// AddTable registers an in-memory table, replacing any dataset with the
// same name. Used by the CLI and by tests.
func (s *Service) AddTable(t *model.Table, defaultColumn string) DatasetInfo {
	return s.put(t, defaultColumn, "memory")
}

func (s *Service) put(t *model.Table, defaultColumn, origin string) DatasetInfo {
	if !t.HasColumn(defaultColumn) && len(t.Columns) > 0 {
		defaultColumn = t.Columns[0]
	}
	info := DatasetInfo{
		Name:          t.Name,
		Rows:          t.Len(),
		TimeColumn:    t.TimeColumn,
		Columns:       append([]string(nil), t.Columns...),
		DefaultColumn: defaultColumn,
		Version:       t.Version(),
		Origin:        origin,
		LoadedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	if _, exists := s.entries[t.Name]; !exists {
		s.order = append(s.order, t.Name)
	}
	s.entries[t.Name] = &entry{table: t, info: info}
	s.mu.Unlock()
	return info
}

// Datasets lists loaded datasets in manifest order.
func (s *Service) Datasets() []DatasetInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DatasetInfo, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].info)
	}
	return out
}

// Dataset returns the description of one dataset.
func (s *Service) Dataset(name string) (DatasetInfo, error) {
	e, err := s.entry(name)
	if err != nil {
		return DatasetInfo{}, err
	}
	return e.info, nil
}

// Table returns the loaded table. Callers must not modify it.
func (s *Service) Table(name string) (*model.Table, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return e.table, nil
}

// Columns returns the value columns of a dataset in file order.
func (s *Service) Columns(name string) ([]string, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), e.table.Columns...), nil
}

// Series returns one column; an empty column selects the dataset default.
func (s *Service) Series(name, column string) (*model.Series, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	if column == "" {
		column = e.info.DefaultColumn
	}
	return e.table.Series(column)
}

// RecentRuns reads the journal; without one it returns nothing.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]model.TrendRun, error) {
	if s.deps.Journal == nil {
		return nil, nil
	}
	return s.deps.Journal.RecentRuns(ctx, limit)
}

func (s *Service) entry(name string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return e, nil
}
