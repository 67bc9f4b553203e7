package gateway

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// SystemMetrics is the body of GET /api/metrics and of the periodic
// "metrics" push.
type SystemMetrics struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPUCores    int     `json:"cpu_cores"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`

	WSClients  int     `json:"ws_clients"`
	Datasets   int     `json:"datasets"`
	Computes   int     `json:"compute_samples"`
	ComputeP50 float64 `json:"compute_p50_ms"`
	ComputeP95 float64 `json:"compute_p95_ms"`
	ComputeP99 float64 `json:"compute_p99_ms"`
	TS         string  `json:"ts"`
}

// CollectMetrics gathers process and hub statistics. h may be nil.
func CollectMetrics(start time.Time, h *Hub) SystemMetrics {
	m := SystemMetrics{
		CPULoad1:   loadAverage(),
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	m.SysMB = float64(ms.Sys) / 1024 / 1024
	m.GCRuns = ms.NumGC

	if h != nil {
		m.WSClients = h.ClientCount()
		if h.Engine != nil {
			m.Datasets = len(h.Engine.Datasets())
		}
		m.Computes = h.Latency.Count()
		m.ComputeP50, m.ComputeP95, m.ComputeP99 = h.Latency.Percentiles()
	}
	return m
}

// loadAverage reads the 1-minute load average; 0 where /proc is missing.
func loadAverage() float64 {
	f, err := os.Open("/proc/loadavg")
	if err != nil {
		return 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[0], 64)
	return v
}
