// Package outbox records domain events in the same transaction as the state
// change they describe and dispatches them to consumers afterwards.
package outbox

import (
	"context"
	"encoding/json"

	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/types"
)

// Publisher writes events to the outbox. Callers invoke Publish inside
// DB.WithTx so the event commits or rolls back with the change it reports.
type Publisher interface {
	Publish(ctx context.Context, tenantID, eventType string, payload interface{}) error
}

type publisher struct {
	repo   domainOutbox.Repository
	clock  types.Clock
	logger *logger.Logger
}

func NewPublisher(repo domainOutbox.Repository, clock types.Clock, logger *logger.Logger) Publisher {
	return &publisher{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

func (p *publisher) Publish(ctx context.Context, tenantID, eventType string, payload interface{}) error {
	if tenantID == "" {
		tenantID = types.GetTenantID(ctx)
	}
	if tenantID == "" || eventType == "" {
		return ierr.NewError("outbox event requires tenant and event type").
			WithHint("Tenant and event type are required").
			Mark(ierr.ErrValidation)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to serialize %s event", eventType).
			Mark(ierr.ErrSystem)
	}

	now := p.clock.Now()
	msg := &domainOutbox.Message{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OUTBOX_MESSAGE),
		TenantID:   tenantID,
		EventType:  eventType,
		Payload:    data,
		OccurredAt: now,
		CreatedAt:  now,
	}

	if err := p.repo.Create(ctx, msg); err != nil {
		return err
	}

	p.logger.Debugw("outbox event recorded",
		"event_id", msg.ID,
		"event_type", eventType,
		"tenant_id", tenantID,
	)
	return nil
}
