package gateway

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"sensortrend/internal/engine"
	"sensortrend/internal/render"
	"sensortrend/internal/trend"
)

//go:embed static/index.html
var staticFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Options configures the HTTP surface.
type Options struct {
	Hub       *Hub
	Router    *PubSubRouter // optional, propagates reloads
	AdminTOTP string        // empty leaves the reload endpoint open
	Start     time.Time
}

// NewHandler returns the full gateway handler with middleware applied.
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, opts)
	return WithMiddleware(mux)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, opts Options) {
	hub := opts.Hub
	svc := hub.Engine
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn)
	})

	// Embedded explorer page
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "page unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	})

	// REST: loaded datasets
	mux.HandleFunc("/api/datasets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Datasets())
	})

	// REST: raw column with slider configuration
	mux.HandleFunc("/api/series", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		dataset := q.Get("dataset")
		series, err := svc.Series(dataset, q.Get("column"))
		if err != nil {
			writeError(w, err)
			return
		}
		n := series.Len()
		writeJSON(w, http.StatusOK, SeriesResponse{
			Dataset:    dataset,
			Column:     series.Name,
			Timestamps: series.Timestamps,
			Values:     series.Values,
			Bounds:     engine.Bounds(n),
			PolyOrders: engine.PolyOrders(),
			Params:     hub.InitialParams(r.Context(), dataset, series.Name, n),
		})
	})

	// REST: smoothed column
	mux.HandleFunc("/api/trend", func(w http.ResponseWriter, r *http.Request) {
		req, ok := trendRequest(w, r, hub)
		if !ok {
			return
		}
		res, err := hub.Compute(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, TrendResponse{
			Result:     res,
			Timestamps: res.Timestamps,
			ElapsedMs:  float64(res.Duration.Microseconds()) / 1000.0,
		})
	})

	// REST: first rows of a dataset
	mux.HandleFunc("/api/head", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		n, ok := intParam(w, q.Get("n"), "n", 20)
		if !ok {
			return
		}
		if n < 1 || n > 1000 {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "n must be between 1 and 1000", Kind: engine.KindInvalidParameter})
			return
		}
		t, err := svc.Table(q.Get("dataset"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, HeadResponse{
			Dataset:    t.Name,
			TimeColumn: t.TimeColumn,
			Columns:    t.Columns,
			Rows:       t.Head(n),
		})
	})

	// REST: two-panel PNG of raw and smoothed column
	mux.HandleFunc("/api/chart.png", func(w http.ResponseWriter, r *http.Request) {
		req, ok := trendRequest(w, r, hub)
		if !ok {
			return
		}
		width, ok := intParam(w, r.URL.Query().Get("width"), "width", render.DefaultWidth)
		if !ok {
			return
		}
		height, ok := intParam(w, r.URL.Query().Get("height"), "height", render.DefaultHeight)
		if !ok {
			return
		}
		res, err := hub.Compute(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		var buf bytes.Buffer
		err = render.TrendPNG(&buf, render.Plot{
			Column:   res.Column,
			X:        res.Timestamps,
			Raw:      res.Raw,
			Smoothed: res.Smoothed,
			Width:    min(max(width, 200), 4000),
			Height:   min(max(height, 120), 2000),
		})
		if err != nil {
			log.Printf("[gateway] chart %s/%s: %v", res.Dataset, res.Column, err)
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: engine.KindInvalidInput})
			return
		}
		hub.Metrics.ObserveChart()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	})

	// REST: recent trend runs from the journal
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit", 50)
		if !ok {
			return
		}
		runs, err := svc.RecentRuns(r.Context(), min(max(limit, 1), 500))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	// REST: POST /api/datasets/reload (admin)
	mux.HandleFunc("/api/datasets/reload", RequireTOTP(opts.AdminTOTP, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "use POST", Kind: "method_not_allowed"})
			return
		}
		name := r.URL.Query().Get("dataset")
		info, err := svc.Reload(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		n := hub.NotifyReloaded(info)
		log.Printf("[gateway] dataset %s reloaded (version %s, %d clients notified)", info.Name, info.Version, n)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := opts.Router.PublishReload(ctx, info); err != nil {
			log.Printf("[gateway] WARNING: failed to publish reload of %s: %v", info.Name, err)
		}
		writeJSON(w, http.StatusOK, info)
	}))

	// REST: process and compute statistics
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, CollectMetrics(opts.Start, hub))
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		datasets := len(svc.Datasets())
		status, code := "ok", http.StatusOK
		if datasets == 0 {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":     status,
			"datasets":   datasets,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(opts.Start).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// trendRequest reads dataset, column, window and order from the query.
// Missing window or order fall back to the params the column would open
// with. Writes a 422 and returns false for non-integer values.
func trendRequest(w http.ResponseWriter, r *http.Request, hub *Hub) (engine.Request, bool) {
	q := r.URL.Query()
	req := engine.Request{Dataset: q.Get("dataset"), Column: q.Get("column")}

	var def trend.Params
	if q.Get("window") == "" || q.Get("order") == "" {
		series, err := hub.Engine.Series(req.Dataset, req.Column)
		if err != nil {
			writeError(w, err)
			return req, false
		}
		def = hub.InitialParams(r.Context(), req.Dataset, series.Name, series.Len())
	}

	var ok bool
	if req.Params.WindowLength, ok = intParam(w, q.Get("window"), "window", def.WindowLength); !ok {
		return req, false
	}
	if req.Params.PolyOrder, ok = intParam(w, q.Get("order"), "order", def.PolyOrder); !ok {
		return req, false
	}
	return req, true
}

// intParam parses an optional integer query value.
func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: name + " must be an integer, got " + strconv.Quote(raw),
			Kind:  engine.KindInvalidParameter,
		})
		return 0, false
	}
	return v, true
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case engine.KindInvalidParameter, engine.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case engine.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := engine.ErrorKind(err)
	if kind == engine.KindInternal {
		log.Printf("[gateway] internal error: %v", err)
	}
	writeJSON(w, StatusFor(kind), ErrorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}
