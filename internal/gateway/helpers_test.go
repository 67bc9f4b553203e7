package gateway

import (
	"context"
	"fmt"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sensortrend/internal/dataset"
	"sensortrend/internal/engine"
)

const testRows = 300

// memParams is an in-memory model.ParamStore.
type memParams struct {
	mu    sync.Mutex
	saved map[string][2]int
	fail  bool
}

func newMemParams() *memParams { return &memParams{saved: map[string][2]int{}} }

func (m *memParams) SaveParams(_ context.Context, dataset, column string, window, order int) error {
	if m.fail {
		return fmt.Errorf("backing store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[dataset+":"+column] = [2]int{window, order}
	return nil
}

func (m *memParams) LoadParams(_ context.Context, dataset, column string) (int, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.saved[dataset+":"+column]
	return v[0], v[1], ok
}

func (m *memParams) get(key string) ([2]int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.saved[key]
	return v, ok
}

func writeSensorCSV(t *testing.T, path string, offset float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("cdatetime_est,conductance,temperature\n")
	base := time.Date(2011, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < testRows; i++ {
		fmt.Fprintf(&b, "%s,%.4f,%.4f\n",
			base.Add(time.Duration(i)*time.Hour).Format("2006-01-02 15:04:05"),
			200+offset+20*math.Sin(float64(i)/12)+float64(i%3),
			15+float64(i%5)/10)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

type testEnv struct {
	srv    *httptest.Server
	hub    *Hub
	params *memParams
	csv    string
}

func newTestEnv(t *testing.T, totpSecret string) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pine.csv")
	writeSensorCSV(t, path, 0)

	svc := engine.New([]dataset.Spec{{Name: "pine", Source: path, DefaultColumn: "conductance"}}, engine.Deps{})
	if _, err := svc.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	params := newMemParams()
	hub := NewHub(svc, NewConfigStore(params), nil)
	srv := httptest.NewServer(NewHandler(Options{
		Hub:       hub,
		Router:    NewPubSubRouter(hub, nil),
		AdminTOTP: totpSecret,
	}))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: hub, params: params, csv: path}
}
