package kafka

import (
	"context"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/pubsub"
)

// PubSub publishes to Kafka through watermill. The subscriber is only
// created on the first Subscribe call.
type PubSub struct {
	publisher *kafka.Publisher
	config    *config.Configuration
	logger    *logger.Logger

	mu         sync.Mutex
	subscriber *kafka.Subscriber
}

func NewPubSub(cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, ierr.NewError("no kafka brokers configured").
			WithHint("Set kafka.brokers when events.broker is kafka").
			Mark(ierr.ErrConfiguration)
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: GetSaramaConfig(cfg),
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to kafka").
			WithReportableDetails(map[string]any{"brokers": cfg.Kafka.Brokers}).
			Mark(ierr.ErrConfiguration)
	}

	return &PubSub{
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}, nil
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.publisher.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subscriber == nil {
		subscriber, err := kafka.NewSubscriber(
			kafka.SubscriberConfig{
				Brokers:               p.config.Kafka.Brokers,
				ConsumerGroup:         p.config.Kafka.ConsumerGroup,
				Unmarshaler:           kafka.DefaultMarshaler{},
				OverwriteSaramaConfig: GetSaramaConfig(p.config),
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to create kafka subscriber").
				Mark(ierr.ErrConfiguration)
		}
		p.subscriber = subscriber
	}
	return p.subscriber.Subscribe(ctx, topic)
}

// Ping checks that at least one broker answers and that topic has
// partitions
func (p *PubSub) Ping(ctx context.Context, topic string) error {
	client, err := sarama.NewClient(p.config.Kafka.Brokers, GetSaramaConfig(p.config))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Kafka is unreachable").
			Mark(ierr.ErrSystem)
	}
	defer client.Close()

	partitions, err := client.Partitions(topic)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Kafka topic %s is unavailable", topic).
			Mark(ierr.ErrSystem)
	}
	p.logger.Debugw("kafka reachable", "topic", topic, "partitions", len(partitions))
	return nil
}

func (p *PubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.publisher.Close()
	if p.subscriber != nil {
		if subErr := p.subscriber.Close(); err == nil {
			err = subErr
		}
	}
	return err
}
