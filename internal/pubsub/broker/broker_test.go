package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flexprice/billing/internal/config"
	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/pubsub"
	"github.com/flexprice/billing/internal/testutil"
	"github.com/flexprice/billing/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *domainOutbox.Message {
	return &domainOutbox.Message{
		ID:         "evt_01",
		TenantID:   "tenant_a",
		EventType:  types.EventInvoicePaid,
		Payload:    json.RawMessage(`{"invoice_id":"inv_1"}`),
		OccurredAt: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestConsumerPublishesWithMetadata(t *testing.T) {
	cfg := testutil.NewTestConfig()
	ps := testutil.NewInMemoryPubSub()
	c := NewConsumer(cfg, ps, logger.NewNopLogger())

	require.NoError(t, c.Consume(context.Background(), testMessage()))

	msgs := ps.Messages(cfg.Events.Topic)
	require.Len(t, msgs, 1)
	assert.Equal(t, "evt_01", msgs[0].UUID)
	assert.Equal(t, "tenant_a", msgs[0].Metadata.Get(pubsub.MetadataTenantID))
	assert.Equal(t, types.EventInvoicePaid, msgs[0].Metadata.Get(pubsub.MetadataEventType))
	assert.JSONEq(t, `{"invoice_id":"inv_1"}`, string(msgs[0].Payload))
}

func TestConsumerReportsPublishFailure(t *testing.T) {
	cfg := testutil.NewTestConfig()
	ps := testutil.NewInMemoryPubSub()
	ps.FailWith(errors.New("broker down"))
	c := NewConsumer(cfg, ps, logger.NewNopLogger())

	err := c.Consume(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Empty(t, ps.Messages(cfg.Events.Topic))
}

func TestNewPubSub(t *testing.T) {
	tests := []struct {
		name    string
		broker  types.BrokerType
		wantNil bool
		wantErr bool
	}{
		{name: "none", broker: types.BrokerNone, wantNil: true},
		{name: "memory", broker: types.BrokerMemory},
		{name: "unknown", broker: types.BrokerType("rabbit"), wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetDefaultConfig()
			cfg.Events.Broker = tt.broker

			ps, err := NewPubSub(cfg, logger.NewNopLogger())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantNil, ps == nil)
			if ps != nil {
				assert.NoError(t, ps.Close())
			}
		})
	}
}

func TestMemoryBrokerRoundTrip(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Events.Broker = types.BrokerMemory

	ps, err := NewPubSub(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := ps.Subscribe(ctx, cfg.Events.Topic)
	require.NoError(t, err)

	require.NoError(t, NewConsumer(cfg, ps, logger.NewNopLogger()).Consume(ctx, testMessage()))

	select {
	case msg := <-ch:
		assert.Equal(t, "evt_01", msg.UUID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}
