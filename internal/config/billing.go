package config

import (
	"time"

	"github.com/flexprice/billing/internal/types"
)

// BackoffConfig describes an exponential delay of base*2^n capped at cap,
// spread by +/- jitter (a fraction of the delay)
type BackoffConfig struct {
	Base   time.Duration `mapstructure:"base" validate:"required,gt=0"`
	Cap    time.Duration `mapstructure:"cap" validate:"required,gtefield=Base"`
	Jitter float64       `mapstructure:"jitter" validate:"gte=0,lt=1"`
}

// RenewalConfig drives the renewal scheduler and invoice generation
type RenewalConfig struct {
	Interval      time.Duration `mapstructure:"interval" validate:"required,gt=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"required,gt=0"`
	Concurrency   int           `mapstructure:"concurrency" validate:"required,gt=0"`
	LeaseDuration time.Duration `mapstructure:"lease_duration" validate:"required,gt=0"`
	TickTimeout   time.Duration `mapstructure:"tick_timeout" validate:"required,gt=0"`
	ChargeTimeout time.Duration `mapstructure:"charge_timeout" validate:"required,gt=0"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"required,gt=0"`
	Backoff       BackoffConfig `mapstructure:"backoff" validate:"required"`
	// TaxRate is applied to the invoice subtotal, e.g. 0.20 for 20%
	TaxRate float64 `mapstructure:"tax_rate" validate:"gte=0,lt=1"`
}

// OutboxConfig drives the outbox dispatcher
type OutboxConfig struct {
	Interval      time.Duration `mapstructure:"interval" validate:"required,gt=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"required,gt=0"`
	LeaseDuration time.Duration `mapstructure:"lease_duration" validate:"required,gt=0"`
	TickTimeout   time.Duration `mapstructure:"tick_timeout" validate:"required,gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"required,gt=0"`
	Backoff       BackoffConfig `mapstructure:"backoff" validate:"required"`
}

// UsageConfig drives usage metering
type UsageConfig struct {
	OveragePolicy types.OveragePolicy `mapstructure:"overage_policy" validate:"required,oneof=cap block"`
	// ResetInterval is how often the counter reset maintenance pass runs
	ResetInterval     time.Duration `mapstructure:"reset_interval" validate:"required,gt=0"`
	DuplicateCacheTTL time.Duration `mapstructure:"duplicate_cache_ttl"`
}
