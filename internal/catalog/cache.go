package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cmdable is the part of the Redis client the cache needs.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

var _ Cmdable = (*redis.Client)(nil)

// CachedLookup is a read-through Redis cache in front of another Lookup.
// Redis failures degrade to a direct lookup; misses are not cached.
type CachedLookup struct {
	next   Lookup
	redis  Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ Lookup = (*CachedLookup)(nil)

// NewCachedLookup wraps next with a cache whose entries live for ttl.
func NewCachedLookup(next Lookup, rdb Cmdable, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLookup{next: next, redis: rdb, ttl: ttl, logger: logger}
}

func cacheKey(id string) string { return "catalog:product:" + id }

// Product returns the cached product or fetches and caches it.
func (c *CachedLookup) Product(ctx context.Context, id string) (*Product, error) {
	key := cacheKey(id)

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var p Product
		if jerr := json.Unmarshal([]byte(cached), &p); jerr == nil {
			return &p, nil
		}
		c.logger.Warn("discarding malformed cache entry", "key", key)
	case err != redis.Nil:
		c.logger.Warn("catalog cache read failed", "key", key, "error", err)
	}

	p, err := c.next.Product(ctx, id)
	if err != nil || p == nil {
		return p, err
	}

	if data, jerr := json.Marshal(p); jerr == nil {
		if serr := c.redis.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("catalog cache write failed", "key", key, "error", serr)
		}
	}
	return p, nil
}
