package gateway

import (
	"sync"

	"github.com/montanaflynn/stats"
)

// LatencyTracker keeps the last N compute latencies (ms) in a ring buffer
// and reports nearest-rank percentiles. Thread-safe.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	pos     int
	count   int
}

// NewLatencyTracker creates a tracker that holds the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds a latency sample in milliseconds.
func (lt *LatencyTracker) Record(latencyMs float64) {
	lt.mu.Lock()
	lt.samples[lt.pos] = latencyMs
	lt.pos = (lt.pos + 1) % len(lt.samples)
	if lt.count < len(lt.samples) {
		lt.count++
	}
	lt.mu.Unlock()
}

// Percentiles returns p50, p95 and p99 in milliseconds, or zeros before the
// first sample.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	data := make(stats.Float64Data, lt.count)
	copy(data, lt.samples[:lt.count])
	lt.mu.Unlock()

	if len(data) == 0 {
		return 0, 0, 0
	}
	p50, _ = stats.PercentileNearestRank(data, 50)
	p95, _ = stats.PercentileNearestRank(data, 95)
	p99, _ = stats.PercentileNearestRank(data, 99)
	return p50, p95, p99
}

// Count returns the number of samples held (up to capacity).
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.count
}
