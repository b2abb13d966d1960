package config

import (
	"testing"
	"time"

	"github.com/flexprice/billing/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.OveragePolicyCap, cfg.Usage.OveragePolicy)
}

func TestNewConfig_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("BILLING_RENEWAL_MAX_ATTEMPTS", "2")
	t.Setenv("BILLING_RENEWAL_BACKOFF_BASE", "10m")
	t.Setenv("BILLING_PAYMENT_DEFAULT_PROVIDER", "stripe")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Renewal.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Renewal.Backoff.Base)
	assert.Equal(t, types.PaymentProviderStripe, cfg.Payment.DefaultProvider)
}

func TestValidate_RejectsCapBelowBase(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Renewal.Backoff.Cap = time.Minute
	cfg.Renewal.Backoff.Base = time.Hour
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownOveragePolicy(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Usage.OveragePolicy = "bill_anyway"
	assert.Error(t, cfg.Validate())
}

func TestPreferredProviderIsCaseInsensitive(t *testing.T) {
	cfg := PaymentConfig{TenantProviders: map[string]types.PaymentProvider{
		"tenant_abc": types.PaymentProviderIyzico,
	}}

	p, ok := cfg.PreferredProvider("TENANT_ABC")
	require.True(t, ok)
	assert.Equal(t, types.PaymentProviderIyzico, p)

	_, ok = cfg.PreferredProvider("other")
	assert.False(t, ok)
}
