package config

import "github.com/flexprice/billing/internal/types"

// EventConfig selects the broker the outbox forwards events to, in addition
// to webhook delivery
type EventConfig struct {
	Broker types.BrokerType `mapstructure:"broker" validate:"omitempty,oneof=none memory kafka"`
	Topic  string           `mapstructure:"topic"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ClientID      string   `mapstructure:"client_id"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}
