package redis

import (
	"context"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// ParamStore keeps the last window/order chosen per dataset column in a
// Redis hash so a returning user gets the same smoothing.
type ParamStore struct {
	client  *goredis.Client
	prefix  string
	breaker *CircuitBreaker
}

// NewParamStore shares breaker with the cache when given one.
func NewParamStore(client *goredis.Client, breaker *CircuitBreaker) *ParamStore {
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 10*time.Second)
	}
	return &ParamStore{client: client, prefix: "trend:params:", breaker: breaker}
}

func (p *ParamStore) key(dataset, column string) string {
	return p.prefix + dataset + ":" + column
}

// SaveParams writes the pair as hash fields window_length and poly_order.
func (p *ParamStore) SaveParams(ctx context.Context, dataset, column string, window, order int) error {
	return p.breaker.Execute(func() error {
		return p.client.HSet(ctx, p.key(dataset, column),
			"window_length", window,
			"poly_order", order,
		).Err()
	})
}

// LoadParams returns ok=false when nothing was saved or Redis is unavailable.
func (p *ParamStore) LoadParams(ctx context.Context, dataset, column string) (int, int, bool) {
	var fields map[string]string
	err := p.breaker.Execute(func() error {
		var err error
		fields, err = p.client.HGetAll(ctx, p.key(dataset, column)).Result()
		return err
	})
	if err != nil {
		log.Printf("[redis-params] load %s:%s: %v", dataset, column, err)
		return 0, 0, false
	}
	w, errW := strconv.Atoi(fields["window_length"])
	o, errO := strconv.Atoi(fields["poly_order"])
	if errW != nil || errO != nil {
		return 0, 0, false
	}
	return w, o, true
}
