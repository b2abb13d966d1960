package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for process-local caching
type Cache interface {
	// Get retrieves a value and whether the key was found
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set adds a value with the given expiration. 0 uses the cache default.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)

	// Add sets the value only if the key is absent or expired and reports
	// whether it did
	Add(ctx context.Context, key string, value interface{}, expiration time.Duration) bool

	Delete(ctx context.Context, key string)

	// DeleteByPrefix removes all keys with the given prefix
	DeleteByPrefix(ctx context.Context, prefix string)

	Flush(ctx context.Context)
}

const (
	// PrefixUsageCorrelation marks usage events already applied by this
	// process, keyed by tenant, feature and correlation id
	PrefixUsageCorrelation = "usage_correlation:v1:"
	// PrefixProviderHealth caches provider availability checks
	PrefixProviderHealth = "provider_health:v1:"
)

// GenerateKey creates a cache key from a prefix and a set of parameters
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, len(params))
	for i, param := range params {
		parts[i] = fmt.Sprintf("%v", param)
	}
	return prefix + strings.Join(parts, ":")
}
