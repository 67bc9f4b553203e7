package gateway

import (
	"strconv"
	"time"
)

// Broadcaster builds server-push envelopes and fans them out to every
// connected client.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends {"type":msgType,"data":data,"ts":...,"seq":N} to all
// clients. data must be valid JSON. Clients whose send buffer is full miss
// the message. Returns the number of clients reached.
func (b *Broadcaster) Broadcast(msgType string, data []byte) int {
	now := time.Now().UTC()

	b.hub.mu.Lock()
	b.hub.seq++
	seq := b.hub.seq
	b.hub.mu.Unlock()

	buf := appendEnvelope(make([]byte, 0, len(msgType)+len(data)+96), msgType, data, now, seq)

	sent := 0
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		select {
		case client.send <- buf:
			sent++
		default:
		}
	}
	return sent
}

// appendEnvelope writes the envelope JSON by hand; msgType is one of the
// Msg* constants and needs no escaping.
func appendEnvelope(buf []byte, msgType string, data []byte, now time.Time, seq int64) []byte {
	buf = append(buf, `{"type":"`...)
	buf = append(buf, msgType...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
