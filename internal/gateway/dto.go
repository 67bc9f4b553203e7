package gateway

import (
	"time"

	"sensortrend/internal/engine"
	"sensortrend/internal/model"
	"sensortrend/internal/trend"
)

// ── WS Protocol Message Types ──

// Client message types.
const (
	MsgSelect = "SELECT"
	MsgParams = "PARAMS"
)

// Server message types.
const (
	MsgSeries          = "series"
	MsgTrend           = "trend"
	MsgError           = "error"
	MsgPong            = "pong"
	MsgDatasetReloaded = "dataset_reloaded"
)

// ClientMsg is any client → server message. Fields not used by a type are
// left zero.
type ClientMsg struct {
	Type         string `json:"type"`
	ReqID        string `json:"req_id"`
	Dataset      string `json:"dataset"`
	Column       string `json:"column"`
	WindowLength *int   `json:"window_length"`
	PolyOrder    *int   `json:"poly_order"`
	Ping         int64  `json:"ping"`
}

// SeriesMsg carries the raw column once per selection, with the slider
// configuration for it.
type SeriesMsg struct {
	Type       string              `json:"type"`
	ReqID      string              `json:"req_id,omitempty"`
	Dataset    string              `json:"dataset"`
	Column     string              `json:"column"`
	Columns    []string            `json:"columns"`
	Timestamps []time.Time         `json:"timestamps"`
	Values     []float64           `json:"values"`
	Bounds     engine.WindowBounds `json:"bounds"`
	PolyOrders []int               `json:"poly_orders"`
	Params     trend.Params        `json:"params"`
}

// TrendMsg carries a smoothed series. Raw values are not resent.
type TrendMsg struct {
	Type      string        `json:"type"`
	ReqID     string        `json:"req_id,omitempty"`
	Dataset   string        `json:"dataset"`
	Column    string        `json:"column"`
	Requested trend.Params  `json:"requested"`
	Effective trend.Params  `json:"effective"`
	Smoothed  []float64     `json:"smoothed"`
	Summary   trend.Summary `json:"summary"`
	Cached    bool          `json:"cached"`
	ElapsedMs float64       `json:"elapsed_ms"`
}

// ErrorMsg is sent for any failed client request.
type ErrorMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// ── REST response types ──

// SeriesResponse is the body of GET /api/series.
type SeriesResponse struct {
	Dataset    string              `json:"dataset"`
	Column     string              `json:"column"`
	Timestamps []time.Time         `json:"timestamps"`
	Values     []float64           `json:"values"`
	Bounds     engine.WindowBounds `json:"bounds"`
	PolyOrders []int               `json:"poly_orders"`
	Params     trend.Params        `json:"params"`
}

// TrendResponse is the body of GET /api/trend.
type TrendResponse struct {
	*engine.Result
	Timestamps []time.Time `json:"timestamps"`
	ElapsedMs  float64     `json:"elapsed_ms"`
}

// HeadResponse is the body of GET /api/head.
type HeadResponse struct {
	Dataset    string      `json:"dataset"`
	TimeColumn string      `json:"time_column"`
	Columns    []string    `json:"columns"`
	Rows       []model.Row `json:"rows"`
}

// ErrorResponse is the body of every failed REST request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
