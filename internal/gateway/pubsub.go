package gateway

import (
	"context"
	"encoding/json"
	"log"

	goredis "github.com/go-redis/redis/v8"

	"sensortrend/internal/engine"
	"sensortrend/internal/logger"
)

// ReloadChannel carries dataset reload events between server instances.
const ReloadChannel = "trend:events:reload"

// ReloadEvent is published after an admin reload.
type ReloadEvent struct {
	Origin  string `json:"origin"`
	Dataset string `json:"dataset"`
	Version string `json:"version"`
}

// PubSubRouter propagates reloads through Redis PubSub so every instance
// behind a load balancer re-reads the dataset and notifies its own clients.
// With a nil client it is a no-op.
type PubSubRouter struct {
	hub    *Hub
	rdb    *goredis.Client
	origin string
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub, rdb *goredis.Client) *PubSubRouter {
	return &PubSubRouter{hub: hub, rdb: rdb, origin: logger.NewRequestID("gw")}
}

// PublishReload announces a local reload to the other instances.
func (r *PubSubRouter) PublishReload(ctx context.Context, info engine.DatasetInfo) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ReloadEvent{Origin: r.origin, Dataset: info.Name, Version: info.Version})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, ReloadChannel, payload).Err()
}

// Run subscribes to ReloadChannel and applies remote reloads. Blocks until
// ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	pubsub := r.rdb.Subscribe(ctx, ReloadChannel)
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to %s", ReloadChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, []byte(msg.Payload))
		}
	}
}

// handle applies one event. Events from this instance, and events for a
// version already loaded, are ignored.
func (r *PubSubRouter) handle(ctx context.Context, payload []byte) bool {
	var ev ReloadEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("[gateway] bad reload event: %v", err)
		return false
	}
	if ev.Origin == r.origin {
		return false
	}
	if cur, err := r.hub.Engine.Dataset(ev.Dataset); err == nil && cur.Version == ev.Version {
		return false
	}
	info, err := r.hub.Engine.Reload(ctx, ev.Dataset)
	if err != nil {
		log.Printf("[gateway] remote reload of %s failed: %v", ev.Dataset, err)
		return false
	}
	n := r.hub.NotifyReloaded(info)
	log.Printf("[gateway] reloaded %s on remote request (version %s, %d clients notified)", info.Name, info.Version, n)
	return true
}
