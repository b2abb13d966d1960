// Package broker selects the configured message broker and forwards outbox
// events to it.
package broker

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/billing/internal/config"
	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/pubsub"
	"github.com/flexprice/billing/internal/pubsub/kafka"
	"github.com/flexprice/billing/internal/pubsub/memory"
	"github.com/flexprice/billing/internal/types"
	"go.uber.org/fx"
)

// NewPubSub returns the broker named by events.broker, or nil when events
// are not forwarded
func NewPubSub(cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	switch cfg.Events.Broker {
	case types.BrokerNone, "":
		return nil, nil
	case types.BrokerMemory:
		return memory.NewPubSub(cfg, logger), nil
	case types.BrokerKafka:
		return kafka.NewPubSub(cfg, logger)
	}
	return nil, ierr.NewErrorf("unsupported broker %q", cfg.Events.Broker).
		WithHint("events.broker must be one of none, memory or kafka").
		Mark(ierr.ErrConfiguration)
}

// Consumer publishes every outbox message to the events topic. The broker
// message UUID is the outbox message ID so downstream subscribers can dedupe
// redeliveries.
type Consumer struct {
	pubsub pubsub.Publisher
	topic  string
	logger *logger.Logger
}

func NewConsumer(cfg *config.Configuration, publisher pubsub.Publisher, logger *logger.Logger) *Consumer {
	return &Consumer{
		pubsub: publisher,
		topic:  cfg.Events.Topic,
		logger: logger,
	}
}

func (c *Consumer) Name() string {
	return "broker"
}

func (c *Consumer) Consume(ctx context.Context, msg *domainOutbox.Message) error {
	out := message.NewMessage(msg.ID, []byte(msg.Payload))
	out.Metadata.Set(pubsub.MetadataTenantID, msg.TenantID)
	out.Metadata.Set(pubsub.MetadataEventType, msg.EventType)

	if err := c.pubsub.Publish(ctx, c.topic, out); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to publish %s to %s", msg.EventType, c.topic).
			Mark(ierr.ErrSystem)
	}

	c.logger.Debugw("event forwarded to broker",
		"event_id", msg.ID,
		"event_type", msg.EventType,
		"topic", c.topic,
	)
	return nil
}

// Module provides the configured broker. The pubsub is nil when no broker is
// configured and closed on shutdown otherwise.
var Module = fx.Options(
	fx.Provide(NewPubSub),
	fx.Invoke(func(lc fx.Lifecycle, ps pubsub.PubSub, logger *logger.Logger) {
		if ps == nil {
			return
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				logger.Info("closing event broker")
				return ps.Close()
			},
		})
	}),
)
