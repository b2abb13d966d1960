package config

import (
	"strings"
	"time"

	"github.com/flexprice/billing/internal/types"
)

type PaymentConfig struct {
	DefaultProvider types.PaymentProvider `mapstructure:"default_provider" validate:"required"`
	// TransientRetries is the number of extra attempts against the same
	// provider after a transient failure
	TransientRetries int           `mapstructure:"transient_retries" validate:"gte=0"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	// FallbackEnabled retries on the default provider once the preferred one
	// keeps failing transiently
	FallbackEnabled bool `mapstructure:"fallback_enabled"`
	// TenantProviders maps a tenant id to its preferred provider. viper lower
	// cases map keys so lookups go through PreferredProvider.
	TenantProviders map[string]types.PaymentProvider `mapstructure:"tenant_providers"`

	Stripe StripeConfig       `mapstructure:"stripe"`
	Iyzico IyzicoConfig       `mapstructure:"iyzico"`
	Mock   MockProviderConfig `mapstructure:"mock"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type IyzicoConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

type MockProviderConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PreferredProvider returns the tenant's preferred provider if one is configured
func (c PaymentConfig) PreferredProvider(tenantID string) (types.PaymentProvider, bool) {
	p, ok := c.TenantProviders[strings.ToLower(tenantID)]
	return p, ok
}
