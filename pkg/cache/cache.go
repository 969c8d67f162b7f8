// Package cache keeps read-mostly documents in Redis as JSON so hot lookups,
// such as the user read on every gated request, skip MongoDB.
//
// Fields tagged `json:"-"` never reach Redis. Models rely on that to keep
// secrets such as password digests out of the cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache reads and writes JSON documents in Redis.
type Cache struct {
	client redis.Cmdable
}

// NewCache wraps a Redis client.
//
// Example:
//
//	c := cache.NewCache(redisDB.Client())
func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// Get decodes the document at key into dst.
func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Set stores v at key for ttl.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.put(ctx, key, raw, ttl)
}

func (c *Cache) put(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete drops keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete %v: %w", keys, err)
	}
	return nil
}

// Fetch returns the document at key, calling load on a miss and caching
// what it returns. An unreachable Redis degrades to calling load. Load
// errors are returned as is and never cached.
//
// The result always goes through JSON, hit or miss, so callers see the
// same fields either way.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, error) {
	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, loading from store")
	}

	loaded, err := load(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.put(ctx, key, raw, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache loaded document")
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &out, nil
}
