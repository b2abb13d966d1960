package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	g := NewGenerator()
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	a := g.GenerateKey(ScopeSubscriptionInvoice, map[string]interface{}{
		"subscription_id": "subs_1",
		"period_start":    start,
		"period_end":      start.AddDate(0, 1, 0),
	})
	b := g.GenerateKey(ScopeSubscriptionInvoice, map[string]interface{}{
		"period_end":      start.AddDate(0, 1, 0),
		"subscription_id": "subs_1",
		"period_start":    start,
	})
	other := g.GenerateKey(ScopeSubscriptionInvoice, map[string]interface{}{
		"subscription_id": "subs_2",
		"period_start":    start,
		"period_end":      start.AddDate(0, 1, 0),
	})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Contains(t, a, "subscription_invoice-")
	assert.True(t, g.ValidateKey(ScopeSubscriptionInvoice, map[string]interface{}{
		"subscription_id": "subs_1",
		"period_start":    start,
		"period_end":      start.AddDate(0, 1, 0),
	}, a))
}

func TestChargeKey(t *testing.T) {
	assert.Equal(t, "inv_1-3", ChargeKey("inv_1", 3))
}
