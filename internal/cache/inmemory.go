package cache

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/billing/internal/config"
	goCache "github.com/patrickmn/go-cache"
)

// DefaultExpiration is used when a caller passes a zero expiration
const DefaultExpiration = 10 * time.Minute

// DefaultCleanupInterval is how often expired items are removed
const DefaultCleanupInterval = 30 * time.Minute

// InMemoryCache implements Cache using github.com/patrickmn/go-cache
type InMemoryCache struct {
	cache *goCache.Cache
}

// NewInMemoryCache creates a cache whose default expiration follows the
// usage duplicate window
func NewInMemoryCache(cfg *config.Configuration) Cache {
	expiration := DefaultExpiration
	if cfg != nil && cfg.Usage.DuplicateCacheTTL > 0 {
		expiration = cfg.Usage.DuplicateCacheTTL
	}
	return &InMemoryCache{
		cache: goCache.New(expiration, DefaultCleanupInterval),
	}
}

func (c *InMemoryCache) Get(_ context.Context, key string) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *InMemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) {
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
}

func (c *InMemoryCache) Add(_ context.Context, key string, value interface{}, expiration time.Duration) bool {
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	return c.cache.Add(key, value, expiration) == nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) {
	c.cache.Delete(key)
}

func (c *InMemoryCache) DeleteByPrefix(_ context.Context, prefix string) {
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

func (c *InMemoryCache) Flush(_ context.Context) {
	c.cache.Flush()
}
