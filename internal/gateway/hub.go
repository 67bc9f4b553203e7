// Package gateway serves the trend explorer: REST endpoints, the embedded
// page and a WebSocket protocol that pushes raw series once per selection
// and a fresh smoothed series on every parameter change.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sensortrend/internal/engine"
	"sensortrend/internal/logger"
	"sensortrend/internal/metrics"
	"sensortrend/internal/trend"
)

// MsgMetrics is the periodic server status push.
const MsgMetrics = "metrics"

// Hub manages WebSocket clients. It acts as a compositor, delegating to
// focused components:
//   - Broadcaster: envelope construction + fan-out
//   - ConfigStore: remembered smoothing params per column
//   - LatencyTracker: compute latency percentiles
type Hub struct {
	Engine  *engine.Service
	Metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	Latency     *LatencyTracker
	Broadcaster *Broadcaster
	ConfigStore *ConfigStore
}

// NewHub creates a Hub. params and m may be nil.
func NewHub(svc *engine.Service, params *ConfigStore, m *metrics.Metrics) *Hub {
	if params == nil {
		params = NewConfigStore(nil)
	}
	h := &Hub{
		Engine:      svc,
		Metrics:     m,
		clients:     make(map[*Client]bool),
		Latency:     NewLatencyTracker(10000),
		ConfigStore: params,
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) *Client {
	client := &Client{
		id:   logger.NewRequestID("ws"),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.Metrics.ClientConnected(1)

	log.Printf("[gateway] ws client %s connected (%d total)", client.id, count)

	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	h.Metrics.ClientConnected(-1)
	close(c.send)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// InitialParams picks the params offered when a column is selected: the
// remembered ones if they still fit the series, otherwise the slider
// defaults for n samples.
func (h *Hub) InitialParams(ctx context.Context, dataset, column string, n int) trend.Params {
	if p, ok := h.ConfigStore.Get(ctx, dataset, column); ok {
		if _, err := p.Validate(n); err == nil {
			return p
		}
	}
	p := engine.SuggestedParams(n)
	if eff := p.Normalize(); p.PolyOrder >= eff.WindowLength {
		p.PolyOrder = max(eff.WindowLength-1, 0)
	}
	return p
}

// Compute runs a trend request and records its latency.
func (h *Hub) Compute(ctx context.Context, req engine.Request) (*engine.Result, error) {
	start := time.Now()
	res, err := h.Engine.Compute(ctx, req)
	if err == nil {
		h.Latency.Record(float64(time.Since(start).Microseconds()) / 1000.0)
	}
	return res, err
}

// NotifyReloaded tells every client that a dataset changed.
func (h *Hub) NotifyReloaded(info engine.DatasetInfo) int {
	data, err := json.Marshal(struct {
		Dataset string `json:"dataset"`
		Rows    int    `json:"rows"`
		Version string `json:"version"`
	}{info.Name, info.Rows, info.Version})
	if err != nil {
		return 0
	}
	return h.Broadcaster.Broadcast(MsgDatasetReloaded, data)
}

// StartMetricsBroadcast pushes server status to all WS clients every
// interval. Blocks until ctx is cancelled.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := json.Marshal(CollectMetrics(start, h))
			if err != nil {
				continue
			}
			h.Broadcaster.Broadcast(MsgMetrics, data)
		}
	}
}
