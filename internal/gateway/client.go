package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"sensortrend/internal/engine"
	"sensortrend/internal/logger"
	"sensortrend/internal/trend"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer. Its selection is only touched
// by readPump, so it needs no lock.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	dataset string
	column  string
	params  trend.Params
}

// ID returns the connection id used in logs.
func (c *Client) ID() string { return c.id }

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: queued messages share one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", engine.KindInvalidInput, "invalid JSON: "+err.Error())
			continue
		}
		c.hub.Metrics.ObserveWSMessage(msg.Type)

		ctx := logger.WithRequestID(context.Background(), c.id)
		switch msg.Type {
		case MsgSelect:
			c.handleSelect(ctx, msg)
		case MsgParams:
			c.handleParams(ctx, msg)
		default:
			if msg.Ping > 0 {
				c.sendJSON(map[string]interface{}{
					"type":      MsgPong,
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				continue
			}
			c.sendError(msg.ReqID, engine.KindInvalidInput, fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

// handleSelect sends the raw series of the selected column followed by its
// trend under the initial params.
func (c *Client) handleSelect(ctx context.Context, msg ClientMsg) {
	info, err := c.hub.Engine.Dataset(msg.Dataset)
	if err != nil {
		c.sendErr(msg.ReqID, err)
		return
	}
	series, err := c.hub.Engine.Series(msg.Dataset, msg.Column)
	if err != nil {
		c.sendErr(msg.ReqID, err)
		return
	}

	n := series.Len()
	params := c.hub.InitialParams(ctx, info.Name, series.Name, n)
	c.dataset, c.column, c.params = info.Name, series.Name, params

	c.sendJSON(SeriesMsg{
		Type:       MsgSeries,
		ReqID:      msg.ReqID,
		Dataset:    info.Name,
		Column:     series.Name,
		Columns:    info.Columns,
		Timestamps: series.Timestamps,
		Values:     series.Values,
		Bounds:     engine.Bounds(n),
		PolyOrders: engine.PolyOrders(),
		Params:     params,
	})
	log.Printf("[gateway] %s selected %s/%s (%d points)", c.id, info.Name, series.Name, n)

	c.computeAndSend(ctx, msg.ReqID, params)
}

// handleParams recomputes the trend of the current selection. Omitted
// fields keep their current value.
func (c *Client) handleParams(ctx context.Context, msg ClientMsg) {
	if c.dataset == "" {
		c.sendError(msg.ReqID, engine.KindInvalidInput, "no series selected")
		return
	}
	p := c.params
	if msg.WindowLength != nil {
		p.WindowLength = *msg.WindowLength
	}
	if msg.PolyOrder != nil {
		p.PolyOrder = *msg.PolyOrder
	}
	if c.computeAndSend(ctx, msg.ReqID, p) {
		c.params = p
		c.hub.ConfigStore.Set(ctx, c.dataset, c.column, p)
	}
}

func (c *Client) computeAndSend(ctx context.Context, reqID string, p trend.Params) bool {
	res, err := c.hub.Compute(ctx, engine.Request{Dataset: c.dataset, Column: c.column, Params: p})
	if err != nil {
		c.sendErr(reqID, err)
		return false
	}
	c.sendJSON(TrendMsg{
		Type:      MsgTrend,
		ReqID:     reqID,
		Dataset:   res.Dataset,
		Column:    res.Column,
		Requested: res.Requested,
		Effective: res.Effective,
		Smoothed:  res.Smoothed,
		Summary:   res.Summary,
		Cached:    res.Cached,
		ElapsedMs: float64(res.Duration.Microseconds()) / 1000.0,
	})
	return true
}

// sendJSON marshals v and queues it. A full queue drops the message.
func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[gateway] client %s send buffer full, dropping message", c.id)
	}
}

func (c *Client) sendErr(reqID string, err error) {
	c.sendError(reqID, engine.ErrorKind(err), err.Error())
}

func (c *Client) sendError(reqID, kind, text string) {
	c.sendJSON(ErrorMsg{Type: MsgError, ReqID: reqID, Kind: kind, Error: text})
}
