package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flexprice/billing/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment" validate:"required"`
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging" validate:"required"`
	Postgres   PostgresConfig   `mapstructure:"postgres" validate:"required"`
	Renewal    RenewalConfig    `mapstructure:"renewal" validate:"required"`
	Outbox     OutboxConfig     `mapstructure:"outbox" validate:"required"`
	Webhook    Webhook          `mapstructure:"webhook" validate:"required"`
	Payment    PaymentConfig    `mapstructure:"payment" validate:"required"`
	Usage      UsageConfig      `mapstructure:"usage" validate:"required"`
	Events     EventConfig      `mapstructure:"events"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required,oneof=local api worker"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

var dotenvLoaded sync.Once

func NewConfig() (*Configuration, error) {
	dotenvLoaded.Do(func() {
		// .env is optional; variables already in the environment win
		_ = godotenv.Load()
	})

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billing")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from config.yaml
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	v.SetDefault("deployment.mode", d.Deployment.Mode)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("logging.level", d.Logging.Level)

	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.dbname", d.Postgres.DBName)
	v.SetDefault("postgres.sslmode", d.Postgres.SSLMode)
	v.SetDefault("postgres.max_open_conns", d.Postgres.MaxOpenConns)
	v.SetDefault("postgres.max_idle_conns", d.Postgres.MaxIdleConns)
	v.SetDefault("postgres.conn_max_lifetime_minutes", d.Postgres.ConnMaxLifetimeMinutes)
	v.SetDefault("postgres.auto_migrate", d.Postgres.AutoMigrate)

	v.SetDefault("renewal.interval", d.Renewal.Interval)
	v.SetDefault("renewal.batch_size", d.Renewal.BatchSize)
	v.SetDefault("renewal.concurrency", d.Renewal.Concurrency)
	v.SetDefault("renewal.lease_duration", d.Renewal.LeaseDuration)
	v.SetDefault("renewal.tick_timeout", d.Renewal.TickTimeout)
	v.SetDefault("renewal.charge_timeout", d.Renewal.ChargeTimeout)
	v.SetDefault("renewal.max_attempts", d.Renewal.MaxAttempts)
	v.SetDefault("renewal.backoff.base", d.Renewal.Backoff.Base)
	v.SetDefault("renewal.backoff.cap", d.Renewal.Backoff.Cap)
	v.SetDefault("renewal.backoff.jitter", d.Renewal.Backoff.Jitter)
	v.SetDefault("renewal.tax_rate", d.Renewal.TaxRate)

	v.SetDefault("outbox.interval", d.Outbox.Interval)
	v.SetDefault("outbox.batch_size", d.Outbox.BatchSize)
	v.SetDefault("outbox.lease_duration", d.Outbox.LeaseDuration)
	v.SetDefault("outbox.tick_timeout", d.Outbox.TickTimeout)
	v.SetDefault("outbox.max_retries", d.Outbox.MaxRetries)
	v.SetDefault("outbox.backoff.base", d.Outbox.Backoff.Base)
	v.SetDefault("outbox.backoff.cap", d.Outbox.Backoff.Cap)
	v.SetDefault("outbox.backoff.jitter", d.Outbox.Backoff.Jitter)

	v.SetDefault("webhook.enabled", d.Webhook.Enabled)
	v.SetDefault("webhook.timeout", d.Webhook.Timeout)
	v.SetDefault("webhook.max_retries", d.Webhook.MaxRetries)
	v.SetDefault("webhook.backoff.base", d.Webhook.Backoff.Base)
	v.SetDefault("webhook.backoff.cap", d.Webhook.Backoff.Cap)
	v.SetDefault("webhook.backoff.jitter", d.Webhook.Backoff.Jitter)
	v.SetDefault("webhook.response_body_limit", d.Webhook.ResponseBodyLimit)
	v.SetDefault("webhook.rate_limit", d.Webhook.RateLimit)
	v.SetDefault("webhook.burst", d.Webhook.Burst)

	v.SetDefault("payment.default_provider", d.Payment.DefaultProvider)
	v.SetDefault("payment.transient_retries", d.Payment.TransientRetries)
	v.SetDefault("payment.retry_interval", d.Payment.RetryInterval)
	v.SetDefault("payment.fallback_enabled", d.Payment.FallbackEnabled)
	v.SetDefault("payment.stripe.secret_key", "")
	v.SetDefault("payment.iyzico.api_key", "")
	v.SetDefault("payment.iyzico.secret_key", "")
	v.SetDefault("payment.iyzico.base_url", d.Payment.Iyzico.BaseURL)
	v.SetDefault("payment.mock.enabled", d.Payment.Mock.Enabled)

	v.SetDefault("usage.overage_policy", d.Usage.OveragePolicy)
	v.SetDefault("usage.reset_interval", d.Usage.ResetInterval)
	v.SetDefault("usage.duplicate_cache_ttl", d.Usage.DuplicateCacheTTL)

	v.SetDefault("events.broker", d.Events.Broker)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.client_id", d.Kafka.ClientID)
	v.SetDefault("kafka.consumer_group", d.Kafka.ConsumerGroup)
	v.SetDefault("kafka.use_sasl", false)
	v.SetDefault("kafka.sasl_mechanism", "")
	v.SetDefault("kafka.sasl_user", "")
	v.SetDefault("kafka.sasl_password", "")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "local")
	v.SetDefault("sentry.sample_rate", 1.0)
}

// GetDefaultConfig returns a default configuration for local development,
// scripts and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelInfo},
		Postgres: PostgresConfig{
			Host:                   "localhost",
			Port:                   5432,
			User:                   "billing",
			Password:               "billing",
			DBName:                 "billing",
			SSLMode:                "disable",
			MaxOpenConns:           20,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
		},
		Renewal: RenewalConfig{
			Interval:      time.Minute,
			BatchSize:     100,
			Concurrency:   8,
			LeaseDuration: 5 * time.Minute,
			TickTimeout:   4 * time.Minute,
			ChargeTimeout: 30 * time.Second,
			MaxAttempts:   4,
			Backoff: BackoffConfig{
				Base:   time.Hour,
				Cap:    72 * time.Hour,
				Jitter: 0.1,
			},
		},
		Outbox: OutboxConfig{
			Interval:      5 * time.Second,
			BatchSize:     100,
			LeaseDuration: time.Minute,
			TickTimeout:   50 * time.Second,
			MaxRetries:    25,
			Backoff: BackoffConfig{
				Base:   5 * time.Second,
				Cap:    time.Hour,
				Jitter: 0.1,
			},
		},
		Webhook: Webhook{
			Enabled:    true,
			Timeout:    10 * time.Second,
			MaxRetries: 8,
			Backoff: BackoffConfig{
				Base:   30 * time.Second,
				Cap:    6 * time.Hour,
				Jitter: 0.2,
			},
			ResponseBodyLimit: 2048,
			RateLimit:         50,
			Burst:             10,
		},
		Payment: PaymentConfig{
			DefaultProvider:  types.PaymentProviderMock,
			TransientRetries: 2,
			RetryInterval:    500 * time.Millisecond,
			FallbackEnabled:  true,
			Iyzico:           IyzicoConfig{BaseURL: "https://sandbox-api.iyzipay.com"},
			Mock:             MockProviderConfig{Enabled: true},
		},
		Usage: UsageConfig{
			OveragePolicy:     types.OveragePolicyCap,
			ResetInterval:     time.Minute,
			DuplicateCacheTTL: 10 * time.Minute,
		},
		Events: EventConfig{
			Broker: types.BrokerNone,
			Topic:  "billing-events",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:29092"},
			ClientID:      "billing-engine",
			ConsumerGroup: "billing-engine",
		},
		Sentry: SentryConfig{Environment: "local", SampleRate: 1.0},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
