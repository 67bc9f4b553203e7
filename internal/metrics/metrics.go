package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trend service.
type Metrics struct {
	ComputeDur    prometheus.Histogram
	ComputesTotal *prometheus.CounterVec // labels: outcome=ok|cached|invalid_parameter|invalid_input|not_found|error
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	ChartRenders  prometheus.Counter

	// Datasets
	DatasetRows  *prometheus.GaugeVec   // labels: dataset
	DatasetLoads *prometheus.CounterVec // labels: dataset, source=file|snapshot|failed

	// Gateway
	WSClients  prometheus.Gauge
	WSMessages *prometheus.CounterVec // labels: type

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensortrend_compute_duration_seconds",
			Help:    "Savitzky-Golay smoothing latency per request (cache misses only)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ComputesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensortrend_computes_total",
			Help: "Trend requests by outcome",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensortrend_cache_hits_total",
			Help: "Trend results served from the Redis cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensortrend_cache_misses_total",
			Help: "Trend results not found in the Redis cache",
		}),
		ChartRenders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensortrend_chart_renders_total",
			Help: "PNG charts rendered",
		}),

		DatasetRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensortrend_dataset_rows",
			Help: "Complete rows held per dataset",
		}, []string{"dataset"}),
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensortrend_dataset_loads_total",
			Help: "Dataset loads by origin (file, snapshot, failed)",
		}, []string{"dataset", "source"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensortrend_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensortrend_ws_messages_total",
			Help: "WebSocket messages received by type",
		}, []string{"type"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensortrend_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensortrend_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.ComputeDur,
		m.ComputesTotal,
		m.CacheHits,
		m.CacheMisses,
		m.ChartRenders,
		m.DatasetRows,
		m.DatasetLoads,
		m.WSClients,
		m.WSMessages,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// ObserveCompute records one trend request. Safe on a nil receiver.
func (m *Metrics) ObserveCompute(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ComputesTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.ComputeDur.Observe(d.Seconds())
	}
}

// ObserveCache records a cache lookup. Safe on a nil receiver.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// ObserveDataset records a dataset load. Safe on a nil receiver.
func (m *Metrics) ObserveDataset(name, source string, rows int) {
	if m == nil {
		return
	}
	m.DatasetLoads.WithLabelValues(name, source).Inc()
	if source != "failed" {
		m.DatasetRows.WithLabelValues(name).Set(float64(rows))
	}
}

// BreakerChanged records a circuit breaker transition given as its numeric
// state. Safe on a nil receiver.
func (m *Metrics) BreakerChanged(to int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// ClientConnected adjusts the WebSocket client gauge by delta. Safe on a
// nil receiver.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.WSClients.Add(float64(delta))
}

// ObserveWSMessage counts one inbound WebSocket message. Safe on a nil
// receiver.
func (m *Metrics) ObserveWSMessage(msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(msgType).Inc()
}

// ObserveChart counts one rendered PNG. Safe on a nil receiver.
func (m *Metrics) ObserveChart() {
	if m == nil {
		return
	}
	m.ChartRenders.Inc()
}
