package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flexprice/billing/internal/config"
	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/types"
)

// Envelope is the JSON body POSTed to endpoints
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelopePayload serializes the body sent for an outbox message
func NewEnvelopePayload(msg *domainOutbox.Message) ([]byte, error) {
	data := msg.Payload
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return json.Marshal(&Envelope{
		ID:         msg.ID,
		Type:       msg.EventType,
		TenantID:   msg.TenantID,
		OccurredAt: msg.OccurredAt,
		Data:       data,
	})
}

// Consumer fans outbox messages out to the tenant's subscribed endpoints.
// Delivery state lives in the append-only delivery log keyed by the outbox
// message ID, so a message handed over again only reaches endpoints that
// have neither succeeded nor permanently failed.
type Consumer struct {
	endpoints  domainWebhook.EndpointRepository
	deliveries domainWebhook.DeliveryRepository
	deliverer  *Deliverer
	enabled    bool
	clock      types.Clock
	logger     *logger.Logger
}

func NewConsumer(
	cfg *config.Configuration,
	endpoints domainWebhook.EndpointRepository,
	deliveries domainWebhook.DeliveryRepository,
	deliverer *Deliverer,
	clock types.Clock,
	logger *logger.Logger,
) *Consumer {
	return &Consumer{
		endpoints:  endpoints,
		deliveries: deliveries,
		deliverer:  deliverer,
		enabled:    cfg.Webhook.Enabled,
		clock:      clock,
		logger:     logger,
	}
}

func (c *Consumer) Name() string {
	return "webhook"
}

// Consume delivers msg to every active endpoint of its tenant that wants the
// event type. While an endpoint waits on its own backoff it returns a
// DeferredError for the earliest retry, so the message is kept without
// spending outbox retries; the webhook retry budget bounds the wait.
func (c *Consumer) Consume(ctx context.Context, msg *domainOutbox.Message) error {
	if !c.enabled {
		return nil
	}

	endpoints, err := c.endpoints.ListActive(ctx)
	if err != nil {
		return err
	}

	var payload []byte
	var retryAt time.Time
	failed, waiting := 0, 0
	now := c.clock.Now()

	wait := func(at time.Time) {
		waiting++
		if retryAt.IsZero() || at.Before(retryAt) {
			retryAt = at
		}
	}

	for _, endpoint := range endpoints {
		if endpoint.TenantID != msg.TenantID || !endpoint.Wants(msg.EventType) {
			continue
		}

		retryCount := 0
		latest, err := c.deliveries.GetLatest(ctx, endpoint.ID, msg.ID)
		switch {
		case ierr.IsNotFound(err):
		case err != nil:
			c.logger.Errorw("failed to read webhook delivery state",
				"endpoint_id", endpoint.ID,
				"event_id", msg.ID,
				"error", err,
			)
			failed++
			continue
		case latest.Settled():
			continue
		case latest.NextRetryAt != nil && latest.NextRetryAt.After(now):
			wait(*latest.NextRetryAt)
			continue
		default:
			retryCount = latest.RetryCount + 1
		}

		if payload == nil {
			if payload, err = NewEnvelopePayload(msg); err != nil {
				return ierr.WithError(err).
					WithHint("Failed to serialize webhook payload").
					Mark(ierr.ErrSystem)
			}
		}

		delivery, err := c.deliverer.Deliver(ctx, endpoint, msg.ID, msg.EventType, payload, retryCount)
		switch {
		case err != nil:
			failed++
		case delivery.NextRetryAt != nil:
			wait(*delivery.NextRetryAt)
		}
	}

	if failed > 0 {
		return ierr.NewErrorf("%d webhook deliveries failed", failed).
			WithReportableDetails(map[string]any{"event_id": msg.ID, "failed": failed, "waiting": waiting}).
			Mark(ierr.ErrHTTPClient)
	}
	if waiting > 0 {
		return &domainOutbox.DeferredError{
			Until:  retryAt,
			Reason: fmt.Sprintf("%d webhook deliveries awaiting retry", waiting),
		}
	}
	return nil
}
