// Package cache is a thin TTL cache over Redis. Every caller treats it as
// best-effort: a miss or a Redis failure falls back to the system-of-record
// store, never to an empty or lost context.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prdagent/prdagent/pkg/utils"
)

// Cache wraps a Redis client. A nil or disabled cache is valid: every
// operation becomes a no-op miss.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New connects to Redis at addr. An empty addr disables the cache.
func New(addr, password string, db int) *Cache {
	c := &Cache{logger: utils.GetLogger()}
	if addr == "" {
		return c
	}
	c.rdb = redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	return c
}

// Enabled reports whether a Redis backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetJSON loads key into out. Returns false on miss or any failure.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	if !c.Enabled() {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("Cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Debug("Cache entry unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON stores v under key with a TTL. Failures are logged and ignored.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Debug("Cache entry marshal failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Debug("Cache set failed", "key", key, "error", err)
	}
}

// Delete removes keys. Failures are logged and ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Debug("Cache delete failed", "keys", keys, "error", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
