package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process Store used when Redis is disabled. Values
// are stored as encoded JSON so callers never share decoded slices.
type MemoryCache struct {
	items  *gocache.Cache
	logger *slog.Logger
}

func NewMemoryCache(defaultTTL time.Duration, logger *slog.Logger) *MemoryCache {
	return &MemoryCache{
		items:  gocache.New(defaultTTL, 2*defaultTTL),
		logger: logger.With("component", "memory_cache"),
	}
}

func (c *MemoryCache) Backend() string {
	return "memory"
}

func (c *MemoryCache) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	c.items.Set(key, data, ttl)
	c.logger.Debug("cache set", "key", key, "size_bytes", len(data), "ttl", ttl)
	return nil
}

func (c *MemoryCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return false, fmt.Errorf("cache entry %q has type %T", key, v)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	c.logger.Debug("cache hit", "key", key, "size_bytes", len(data))
	return true, nil
}
