package config

import "time"

// Webhook represents the configuration for outbound webhook delivery
type Webhook struct {
	Enabled    bool          `mapstructure:"enabled"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	Backoff    BackoffConfig `mapstructure:"backoff" validate:"required"`
	// ResponseBodyLimit truncates the stored response body (bytes)
	ResponseBodyLimit int `mapstructure:"response_body_limit" validate:"gt=0"`
	// RateLimit caps outbound requests per second across all endpoints
	RateLimit float64 `mapstructure:"rate_limit" validate:"gt=0"`
	Burst     int     `mapstructure:"burst" validate:"gt=0"`
}
