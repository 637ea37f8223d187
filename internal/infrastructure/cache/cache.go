// SPDX-License-Identifier: AGPL-3.0-or-later
// Package cache provides a small shared key/value cache for the negative
// secret-name lookups, backed by Redis
// when ACTIONCORE_REDIS_URL is configured and an in-process map otherwise so
// a single-replica deployment never requires standing up Redis.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the minimal interface the services package depends on.
type Cache interface {
	// Get reports whether key is present and unexpired.
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// NewFromURL returns a RedisCache backed by url, or a MemoryCache if url is
// empty.
func NewFromURL(url string) (Cache, error) {
	if url == "" {
		return NewMemoryCache(), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// RedisCache shares state across replicas; lookups that fail (network blip,
// Redis down) are treated as a cache miss rather than an error, since the
// cache is an optimization and the caller always has a correct slow path.
type RedisCache struct {
	client *redis.Client
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.client.Set(ctx, key, value, ttl)
}

// MemoryCache is the single-replica fallback; entries past their expiry are
// evicted lazily on Get.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value   string
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{value: value, expires: time.Now().Add(ttl)}
}
