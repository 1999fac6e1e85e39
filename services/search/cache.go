package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/meghashyamc/searchsync/logger"
)

// Cache stores encoded responses. A miss and a failed read look the same to callers.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
	// Invalidate drops every entry whose key starts with one of the prefixes.
	Invalidate(ctx context.Context, prefixes ...string)
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type RedisCache struct {
	client redisStore
	logger logger.Logger
}

func NewRedisCache(logger logger.Logger, client redisStore) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("failed to write cache entry", "key", key, "err", err.Error())
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		deleted, err := c.client.FlushByPattern(ctx, prefix+"*")
		if err != nil {
			c.logger.Warn("failed to invalidate cache entries", "prefix", prefix, "err", err.Error())
			continue
		}
		c.logger.Debug("invalidated cache entries", "prefix", prefix, "deleted", deleted)
	}
}

const localCacheSize = 1024

// LocalCache keeps one expirable LRU per distinct TTL.
type LocalCache struct {
	mu     sync.Mutex
	caches map[time.Duration]*expirable.LRU[string, string]
}

func NewLocalCache() *LocalCache {
	return &LocalCache{caches: make(map[time.Duration]*expirable.LRU[string, string])}
}

func (c *LocalCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cache := range c.caches {
		if value, ok := cache.Get(key); ok {
			return value, true
		}
	}
	return "", false
}

func (c *LocalCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache, ok := c.caches[ttl]
	if !ok {
		cache = expirable.NewLRU[string, string](localCacheSize, nil, ttl)
		c.caches[ttl] = cache
	}
	cache.Add(key, value)
}

// Invalidate with no prefixes empties the cache.
func (c *LocalCache) Invalidate(ctx context.Context, prefixes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cache := range c.caches {
		if len(prefixes) == 0 {
			cache.Purge()
			continue
		}
		for _, key := range cache.Keys() {
			for _, prefix := range prefixes {
				if strings.HasPrefix(key, prefix) {
					cache.Remove(key)
					break
				}
			}
		}
	}
}
