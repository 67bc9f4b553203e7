package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sensortrend/internal/engine"
	"sensortrend/internal/trend"
)

// wsMsg is a superset of every server message.
type wsMsg struct {
	Type      string              `json:"type"`
	ReqID     string              `json:"req_id"`
	Kind      string              `json:"kind"`
	Error     string              `json:"error"`
	Column    string              `json:"column"`
	Values    []float64           `json:"values"`
	Smoothed  []float64           `json:"smoothed"`
	Bounds    engine.WindowBounds `json:"bounds"`
	Params    trend.Params        `json:"params"`
	Effective trend.Params        `json:"effective"`
	Ping      int64               `json:"ping"`
	Data      json.RawMessage     `json:"data"`
}

// wsConn reads server messages one at a time, splitting coalesced frames.
type wsConn struct {
	t       *testing.T
	conn    *websocket.Conn
	pending [][]byte
}

func dialWS(t *testing.T, env *testEnv) *wsConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

func (c *wsConn) send(v interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsConn) next() wsMsg {
	c.t.Helper()
	if len(c.pending) == 0 {
		c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
		c.pending = bytes.Split(data, []byte{'\n'})
	}
	raw := c.pending[0]
	c.pending = c.pending[1:]
	var m wsMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.t.Fatalf("bad message %q: %v", raw, err)
	}
	return m
}

func (c *wsConn) expect(msgType string) wsMsg {
	c.t.Helper()
	m := c.next()
	if m.Type != msgType {
		c.t.Fatalf("got %q message (%s %s), want %q", m.Type, m.Kind, m.Error, msgType)
	}
	return m
}

func intPtr(v int) *int { return &v }

func TestWS_SelectSendsSeriesThenTrend(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, env)

	ws.send(ClientMsg{Type: MsgSelect, ReqID: "r1", Dataset: "pine", Column: "temperature"})

	series := ws.expect(MsgSeries)
	if series.ReqID != "r1" || series.Column != "temperature" || len(series.Values) != testRows {
		t.Fatalf("series: req=%q column=%q values=%d", series.ReqID, series.Column, len(series.Values))
	}
	if series.Bounds.Max != 30 || series.Params.WindowLength != 3 {
		t.Errorf("bounds=%+v params=%+v", series.Bounds, series.Params)
	}

	tr := ws.expect(MsgTrend)
	if len(tr.Smoothed) != testRows || tr.Values != nil {
		t.Errorf("trend: smoothed=%d, raw should not be resent", len(tr.Smoothed))
	}
	if tr.Effective != series.Params {
		t.Errorf("initial trend effective=%+v, want %+v", tr.Effective, series.Params)
	}
}

func TestWS_ParamsRecomputeAndPersist(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, env)

	ws.send(ClientMsg{Type: MsgSelect, Dataset: "pine"})
	ws.expect(MsgSeries)
	ws.expect(MsgTrend)

	ws.send(ClientMsg{Type: MsgParams, ReqID: "p1", WindowLength: intPtr(20), PolyOrder: intPtr(3)})
	tr := ws.expect(MsgTrend)
	if tr.ReqID != "p1" || tr.Effective != (trend.Params{WindowLength: 21, PolyOrder: 3}) {
		t.Fatalf("trend req=%q effective=%+v", tr.ReqID, tr.Effective)
	}
	if got, ok := env.params.get("pine:conductance"); !ok || got != [2]int{20, 3} {
		t.Errorf("persisted params=%v ok=%v", got, ok)
	}

	// Order only; window keeps its last value.
	ws.send(ClientMsg{Type: MsgParams, ReqID: "p2", PolyOrder: intPtr(1)})
	tr = ws.expect(MsgTrend)
	if tr.Effective != (trend.Params{WindowLength: 21, PolyOrder: 1}) {
		t.Errorf("effective=%+v", tr.Effective)
	}

	// A fresh selection restores the remembered params.
	ws.send(ClientMsg{Type: MsgSelect, Dataset: "pine", Column: "conductance"})
	series := ws.expect(MsgSeries)
	if series.Params != (trend.Params{WindowLength: 20, PolyOrder: 1}) {
		t.Errorf("restored params=%+v", series.Params)
	}
	ws.expect(MsgTrend)
}

func TestWS_Errors(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, env)

	ws.send(ClientMsg{Type: MsgParams, ReqID: "early", WindowLength: intPtr(5)})
	m := ws.expect(MsgError)
	if m.Kind != engine.KindInvalidInput || m.ReqID != "early" {
		t.Errorf("params before select: %+v", m)
	}

	ws.send(ClientMsg{Type: MsgSelect, ReqID: "s", Dataset: "nope"})
	if m := ws.expect(MsgError); m.Kind != engine.KindNotFound {
		t.Errorf("unknown dataset kind=%q", m.Kind)
	}

	ws.send(ClientMsg{Type: MsgSelect, Dataset: "pine"})
	ws.expect(MsgSeries)
	ws.expect(MsgTrend)

	ws.send(ClientMsg{Type: MsgParams, ReqID: "bad", WindowLength: intPtr(3), PolyOrder: intPtr(3)})
	m = ws.expect(MsgError)
	if m.Kind != engine.KindInvalidParameter || m.ReqID != "bad" {
		t.Errorf("invalid params: %+v", m)
	}
	if _, ok := env.params.get("pine:conductance"); ok {
		t.Error("rejected params must not be persisted")
	}

	ws.send(map[string]string{"type": "NOPE"})
	if m := ws.expect(MsgError); m.Kind != engine.KindInvalidInput {
		t.Errorf("unknown type kind=%q", m.Kind)
	}

	if err := ws.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	ws.expect(MsgError)
}

func TestWS_Ping(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, env)
	ws.send(ClientMsg{Ping: 12345})
	if m := ws.expect(MsgPong); m.Ping != 12345 {
		t.Errorf("pong ping=%d", m.Ping)
	}
}

func TestWS_ReloadIsBroadcast(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, env)
	ws.send(ClientMsg{Type: MsgSelect, Dataset: "pine"})
	ws.expect(MsgSeries)
	ws.expect(MsgTrend)
	if env.hub.ClientCount() != 1 {
		t.Fatalf("clients=%d", env.hub.ClientCount())
	}

	writeSensorCSV(t, env.csv, 25)
	resp, err := http.Post(env.srv.URL+"/api/datasets/reload?dataset=pine", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	m := ws.expect(MsgDatasetReloaded)
	var ev struct {
		Dataset string `json:"dataset"`
		Rows    int    `json:"rows"`
	}
	if err := json.Unmarshal(m.Data, &ev); err != nil || ev.Dataset != "pine" || ev.Rows != testRows {
		t.Errorf("event=%+v err=%v", ev, err)
	}
}

func TestWS_DisconnectRemovesClient(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, env)
	ws.send(ClientMsg{Ping: 1})
	ws.expect(MsgPong)
	ws.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
