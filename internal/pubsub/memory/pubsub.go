package memory

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flexprice/billing/internal/config"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/pubsub"
	"github.com/flexprice/billing/internal/types"
)

// PubSub is an in-process broker used in local mode and by subscribers
// running in the same binary
type PubSub struct {
	pubsub *gochannel.GoChannel
	topic  string
	logger *logger.Logger
}

func NewPubSub(
	cfg *config.Configuration,
	logger *logger.Logger,
) pubsub.PubSub {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			// late subscribers still see earlier events
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            100,
		},
		watermill.NewStdLogger(cfg.Logging.Level == types.LogLevelDebug, false),
	)

	return &PubSub{
		pubsub: goChannel,
		topic:  cfg.Events.Topic,
		logger: logger,
	}
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.pubsub.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	p.logger.Debugw("closing in-memory pubsub", "topic", p.topic)
	return p.pubsub.Close()
}
