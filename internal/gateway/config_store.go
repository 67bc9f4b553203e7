package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"sensortrend/internal/model"
	"sensortrend/internal/trend"
)

// ConfigStore remembers the last smoothing parameters per dataset column.
// Values live in memory and are written through to the optional backing
// store so they survive restarts and are shared between instances.
type ConfigStore struct {
	mu      sync.RWMutex
	mem     map[string]trend.Params
	backing model.ParamStore
}

// NewConfigStore creates a ConfigStore. backing may be nil.
func NewConfigStore(backing model.ParamStore) *ConfigStore {
	return &ConfigStore{mem: make(map[string]trend.Params), backing: backing}
}

func paramKey(dataset, column string) string { return dataset + ":" + column }

// Get returns the remembered params, consulting the backing store on a
// memory miss.
func (cs *ConfigStore) Get(ctx context.Context, dataset, column string) (trend.Params, bool) {
	k := paramKey(dataset, column)
	cs.mu.RLock()
	p, ok := cs.mem[k]
	cs.mu.RUnlock()
	if ok || cs.backing == nil {
		return p, ok
	}

	window, order, ok := cs.backing.LoadParams(ctx, dataset, column)
	if !ok {
		return trend.Params{}, false
	}
	p = trend.Params{WindowLength: window, PolyOrder: order}
	cs.mu.Lock()
	cs.mem[k] = p
	cs.mu.Unlock()
	log.Printf("[config_store] restored params for %s: window=%d order=%d", k, window, order)
	return p, true
}

// Set records params. Backing store failures are logged only.
func (cs *ConfigStore) Set(ctx context.Context, dataset, column string, p trend.Params) {
	cs.mu.Lock()
	cs.mem[paramKey(dataset, column)] = p
	cs.mu.Unlock()

	if cs.backing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cs.backing.SaveParams(ctx, dataset, column, p.WindowLength, p.PolyOrder); err != nil {
		log.Printf("[config_store] WARNING: failed to persist params for %s:%s: %v", dataset, column, err)
	}
}
