// Package redis implements the MetricsCache port on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricsCache = (*Cache)(nil)

const keyPrefix = "reviewpulse:metrics:"

// Cache stores serialized metrics reports with a fixed TTL. Backend errors
// are logged and reported as misses.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New parses redisURL, connects and verifies the connection with a ping.
func New(ctx context.Context, redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	c := &Cache{rdb: redis.NewClient(opts), ttl: ttl}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return c, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }

// Get returns the cached value for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("metrics cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

// Set stores value under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	if err := c.rdb.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		slog.Warn("metrics cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes every cached metrics entry.
func (c *Cache) Invalidate(ctx context.Context) {
	var keys []string

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("metrics cache scan failed", "error", err)
		return
	}

	if len(keys) == 0 {
		return
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("metrics cache invalidation failed", "keys", len(keys), "error", err)
		return
	}

	slog.Debug("metrics cache invalidated", "keys", len(keys))
}
