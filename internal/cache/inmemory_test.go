package cache

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/billing/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(config.GetDefaultConfig())

	key := GenerateKey(PrefixUsageCorrelation, "tenant_1", "feat_api", "evt-1")
	assert.Equal(t, "usage_correlation:v1:tenant_1:feat_api:evt-1", key)

	assert.True(t, c.Add(ctx, key, true, 0))
	assert.False(t, c.Add(ctx, key, true, 0), "second add of a live key must fail")

	v, ok := c.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	c.Set(ctx, GenerateKey(PrefixProviderHealth, "stripe"), "ok", time.Minute)
	c.DeleteByPrefix(ctx, PrefixUsageCorrelation)

	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
	_, ok = c.Get(ctx, GenerateKey(PrefixProviderHealth, "stripe"))
	assert.True(t, ok)

	c.Flush(ctx)
	_, ok = c.Get(ctx, GenerateKey(PrefixProviderHealth, "stripe"))
	assert.False(t, ok)
}
