package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"sensortrend/internal/dataset"
	"sensortrend/internal/metrics"
	"sensortrend/internal/model"
	"sensortrend/internal/trend"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type memCache struct {
	mu   sync.Mutex
	data map[string][]float64
	gets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]float64{}} }

func (c *memCache) GetTrend(_ context.Context, key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) PutTrend(_ context.Context, key string, values []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]float64(nil), values...)
	return nil
}

type memJournal struct {
	mu   sync.Mutex
	runs []model.TrendRun
}

func (j *memJournal) RecordRun(_ context.Context, r model.TrendRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, r)
	return nil
}

func (j *memJournal) RecentRuns(_ context.Context, limit int) ([]model.TrendRun, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.TrendRun
	for i := len(j.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.runs[i])
	}
	return out, nil
}

type memSnapshots struct {
	tables map[string]*model.Table
	saves  int
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, t *model.Table) error {
	m.saves++
	m.tables[t.Name] = t
	return nil
}

func (m *memSnapshots) LatestSnapshot(_ context.Context, name string) (*model.Table, error) {
	return m.tables[name], nil
}

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func writeCSV(t *testing.T, dir, name string, n int, offset float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("cdatetime_est,conductance,temperature\n")
	base := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 30 * time.Minute).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "%s,%.4f,%.4f\n", ts, 100+offset+10*math.Sin(float64(i)/8), 12+float64(i%7)/10)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newService(t *testing.T, n int) (*Service, *memCache, *memJournal, *memSnapshots, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeCSV(t, dir, "pine.csv", n, 0)
	cache, journal := newMemCache(), &memJournal{}
	snaps := &memSnapshots{tables: map[string]*model.Table{}}
	svc := New([]dataset.Spec{{Name: "pine", Source: path, DefaultColumn: "temperature"}}, Deps{
		Cache:     cache,
		Journal:   journal,
		Snapshots: snaps,
	})
	if _, err := svc.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return svc, cache, journal, snaps, path
}

// ────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────

func TestService_LoadAll(t *testing.T) {
	svc, _, _, snaps, _ := newService(t, 200)

	infos := svc.Datasets()
	if len(infos) != 1 {
		t.Fatalf("datasets=%d, want 1", len(infos))
	}
	info := infos[0]
	if info.Rows != 200 || info.Origin != "file" || info.DefaultColumn != "temperature" {
		t.Errorf("unexpected info: %+v", info)
	}
	if snaps.saves != 1 {
		t.Errorf("snapshot saves=%d, want 1", snaps.saves)
	}
}

func TestService_LoadAllFallsBackToSnapshot(t *testing.T) {
	snap := model.NewTable("pine", "ts", []string{"conductance"})
	snap.AppendRow(time.Unix(0, 0), []float64{1})
	snap.AppendRow(time.Unix(60, 0), []float64{2})

	svc := New([]dataset.Spec{
		{Name: "pine", Source: filepath.Join(t.TempDir(), "missing.csv")},
		{Name: "creek", Source: filepath.Join(t.TempDir(), "missing.csv")},
	}, Deps{Snapshots: &memSnapshots{tables: map[string]*model.Table{"pine": snap}}})

	n, err := svc.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded=%d, want 1", n)
	}
	info, err := svc.Dataset("pine")
	if err != nil || info.Origin != "snapshot" {
		t.Errorf("info=%+v err=%v", info, err)
	}
	if _, err := svc.Dataset("creek"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("creek: expected ErrUnknownDataset, got %v", err)
	}
}

func TestService_LoadAllFailsWhenNothingLoads(t *testing.T) {
	svc := New([]dataset.Spec{{Name: "a", Source: "/nonexistent/a.csv"}}, Deps{})
	if _, err := svc.LoadAll(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestService_ReloadChangesVersion(t *testing.T) {
	svc, _, _, _, path := newService(t, 100)
	before, _ := svc.Dataset("pine")

	writeCSV(t, filepath.Dir(path), filepath.Base(path), 100, 5)
	after, err := svc.Reload(context.Background(), "pine")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if after.Version == before.Version {
		t.Error("version should change after the source changes")
	}

	os.Remove(path)
	if _, err := svc.Reload(context.Background(), "pine"); err == nil {
		t.Fatal("expected reload of a missing source to fail")
	}
	kept, _ := svc.Dataset("pine")
	if kept.Version != after.Version {
		t.Error("failed reload should keep the previous table")
	}
	if _, err := svc.Reload(context.Background(), "nope"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Compute
// ────────────────────────────────────────────────────────────

func TestService_ComputeMatchesCore(t *testing.T) {
	svc, _, _, _, _ := newService(t, 300)
	ctx := context.Background()

	res, err := svc.Compute(ctx, Request{Dataset: "pine", Column: "conductance", Params: trend.Params{WindowLength: 21, PolyOrder: 3}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	series, _ := svc.Series("pine", "conductance")
	want, _ := trend.Filter(series.Values, trend.Params{WindowLength: 21, PolyOrder: 3})
	if len(res.Smoothed) != len(want) {
		t.Fatalf("len=%d, want %d", len(res.Smoothed), len(want))
	}
	for i := range want {
		if res.Smoothed[i] != want[i] {
			t.Fatalf("index %d: %v, want %v", i, res.Smoothed[i], want[i])
		}
	}
	if len(res.Timestamps) != len(res.Raw) || len(res.Raw) != 300 {
		t.Errorf("timestamps=%d raw=%d", len(res.Timestamps), len(res.Raw))
	}
}

func TestService_ComputeUsesCacheAndJournal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	svc, cache, journal, _, _ := newService(t, 200)
	svc.deps.Metrics = m
	ctx := context.Background()

	first, err := svc.Compute(ctx, Request{Dataset: "pine", Params: trend.Params{WindowLength: 10, PolyOrder: 2}})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Cached || first.Column != "temperature" {
		t.Errorf("first: cached=%v column=%q", first.Cached, first.Column)
	}
	if first.Effective.WindowLength != 11 || first.Requested.WindowLength != 10 {
		t.Errorf("requested=%+v effective=%+v", first.Requested, first.Effective)
	}

	// Window 11 normalizes to the same key as window 10.
	second, err := svc.Compute(ctx, Request{Dataset: "pine", Params: trend.Params{WindowLength: 11, PolyOrder: 2}})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Cached {
		t.Error("second request should hit the cache")
	}
	if len(cache.data) != 1 {
		t.Errorf("cache entries=%d, want 1", len(cache.data))
	}

	runs, _ := svc.RecentRuns(ctx, 10)
	if len(runs) != 2 || !runs[0].Cached || runs[1].Cached {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].RunID == "" || runs[0].RunID == runs[1].RunID {
		t.Errorf("run ids should be unique: %q %q", runs[0].RunID, runs[1].RunID)
	}
	if len(journal.runs) != 2 {
		t.Errorf("journal=%d", len(journal.runs))
	}

	if got := testutil.ToFloat64(m.ComputesTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok computes=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ComputesTotal.WithLabelValues("cached")); got != 1 {
		t.Errorf("cached computes=%v, want 1", got)
	}
}

func TestService_ComputeCacheInvalidatedByReload(t *testing.T) {
	svc, _, _, _, path := newService(t, 120)
	ctx := context.Background()
	req := Request{Dataset: "pine", Column: "conductance", Params: trend.DefaultParams()}

	if _, err := svc.Compute(ctx, req); err != nil {
		t.Fatal(err)
	}
	writeCSV(t, filepath.Dir(path), filepath.Base(path), 120, 50)
	if _, err := svc.Reload(ctx, "pine"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Compute(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("result cached before the reload must not be served")
	}
	if res.Smoothed[0] < 140 {
		t.Errorf("trend should follow the new data, got %v", res.Smoothed[0])
	}
}

func TestService_ComputeErrors(t *testing.T) {
	svc, _, journal, _, _ := newService(t, 50)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		kind string
	}{
		{"unknown dataset", Request{Dataset: "nope", Params: trend.DefaultParams()}, KindNotFound},
		{"unknown column", Request{Dataset: "pine", Column: "ph", Params: trend.DefaultParams()}, KindNotFound},
		{"window equals order", Request{Dataset: "pine", Params: trend.Params{WindowLength: 3, PolyOrder: 3}}, KindInvalidParameter},
		{"window too long", Request{Dataset: "pine", Params: trend.Params{WindowLength: 55, PolyOrder: 2}}, KindInvalidParameter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Compute(ctx, tc.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := ErrorKind(err); got != tc.kind {
				t.Errorf("kind=%q, want %q (err=%v)", got, tc.kind, err)
			}
		})
	}
	if len(journal.runs) != 0 {
		t.Errorf("failed requests should not be journaled, got %d", len(journal.runs))
	}
}

func TestErrorKind(t *testing.T) {
	if got := ErrorKind(fmt.Errorf("wrap: %w", trend.ErrInvalidInput)); got != KindInvalidInput {
		t.Errorf("got %q", got)
	}
	if got := ErrorKind(errors.New("boom")); got != KindInternal {
		t.Errorf("got %q", got)
	}
}

func TestService_AddTable(t *testing.T) {
	svc := New(nil, Deps{})
	tbl := model.NewTable("mem", "t", []string{"a", "b"})
	for i := 0; i < 10; i++ {
		tbl.AppendRow(time.Unix(int64(i), 0), []float64{float64(i), 1})
	}
	info := svc.AddTable(tbl, "missing")
	if info.DefaultColumn != "a" || info.Origin != "memory" {
		t.Errorf("unexpected info: %+v", info)
	}
	res, err := svc.Compute(context.Background(), Request{Dataset: "mem", Params: trend.Params{WindowLength: 5, PolyOrder: 1}})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.Smoothed {
		if math.Abs(v-float64(i)) > 1e-9 {
			t.Errorf("linear data should be reproduced: index %d got %v", i, v)
		}
	}
}

func TestService_Columns(t *testing.T) {
	svc, _, _, _, _ := newService(t, 50)
	cols, err := svc.Columns("pine")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(cols, ",") != "conductance,temperature" {
		t.Errorf("columns=%v", cols)
	}
	cols[0] = "changed"
	if again, _ := svc.Columns("pine"); again[0] != "conductance" {
		t.Error("Columns must return a copy")
	}
	if _, err := svc.Columns("nope"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("err=%v, want ErrUnknownDataset", err)
	}
}
