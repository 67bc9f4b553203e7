package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/golang/snappy"
)

// ClientConfig configures the Redis connection.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and pings the server.
func NewClient(cfg ClientConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s db=%d", cfg.Addr, cfg.DB)
	return client, nil
}

// Cache stores smoothed series as snappy-compressed little-endian float64s.
type Cache struct {
	client  *goredis.Client
	ttl     time.Duration
	prefix  string
	breaker *CircuitBreaker
}

// NewCache wraps client. A nil breaker gets a default one (5 failures,
// 10s cooldown).
func NewCache(client *goredis.Client, ttl time.Duration, breaker *CircuitBreaker) *Cache {
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		prefix:  "trend:result:",
		breaker: breaker,
	}
}

// Breaker exposes the breaker so callers can watch its state.
func (c *Cache) Breaker() *CircuitBreaker { return c.breaker }

// GetTrend returns the cached series for key. Misses, decode errors and
// Redis failures all report false.
func (c *Cache) GetTrend(ctx context.Context, key string) ([]float64, bool) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		b, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			log.Printf("[redis-cache] get %s: %v", key, err)
		}
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	vals, err := decodeFloats(raw)
	if err != nil {
		log.Printf("[redis-cache] decode %s: %v", key, err)
		return nil, false
	}
	return vals, true
}

// PutTrend stores values under key with the cache TTL.
func (c *Cache) PutTrend(ctx context.Context, key string, values []float64) error {
	payload := encodeFloats(values)
	return c.breaker.Execute(func() error {
		return c.client.Set(ctx, c.prefix+key, payload, c.ttl).Err()
	})
}

func encodeFloats(values []float64) []byte {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return snappy.Encode(nil, raw)
}

func decodeFloats(payload []byte) ([]float64, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of 8", len(raw))
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}
