package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/billing/internal/config"
	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/retry"
	"github.com/flexprice/billing/internal/sentry"
	"github.com/flexprice/billing/internal/types"
)

// Consumer handles one outbox message. Delivery is at least once and may be
// reordered across batches, so consumers dedupe on the message ID.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, msg *domainOutbox.Message) error
}

// DispatchResult summarises one dispatch pass
type DispatchResult struct {
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeFailed
	outcomeDeferred
)

// Dispatcher hands claimed outbox messages to every registered consumer
type Dispatcher struct {
	repo      domainOutbox.Repository
	consumers []Consumer
	cfg       config.OutboxConfig
	policy    *retry.Policy
	clock     types.Clock
	logger    *logger.Logger
	sentry    *sentry.Service
}

func NewDispatcher(
	cfg *config.Configuration,
	repo domainOutbox.Repository,
	clock types.Clock,
	logger *logger.Logger,
	sentry *sentry.Service,
	consumers ...Consumer,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		consumers: consumers,
		cfg:       cfg.Outbox,
		policy:    retry.NewPolicy(cfg.Outbox.Backoff),
		clock:     clock,
		logger:    logger,
		sentry:    sentry,
	}
}

// Register appends a consumer. Consumers run in registration order.
func (d *Dispatcher) Register(c Consumer) {
	d.consumers = append(d.consumers, c)
}

// DispatchPending claims up to batchSize undelivered messages, oldest first,
// and runs every consumer on each. A message is marked processed only when
// all consumers succeed. A consumer failure bumps the retry count and holds
// the message back by the outbox backoff; a consumer that defers only moves
// the next attempt. Per-message failures never fail the pass.
func (d *Dispatcher) DispatchPending(ctx context.Context, batchSize int) (*DispatchResult, error) {
	if batchSize <= 0 {
		batchSize = d.cfg.BatchSize
	}

	span, ctx := d.sentry.StartTransaction(ctx, "outbox.dispatch")
	defer sentry.FinishSpan(span)

	now := d.clock.Now()
	msgs, err := d.repo.ClaimPending(ctx, domainOutbox.ClaimParams{
		Now:        now,
		LeaseUntil: now.Add(d.cfg.LeaseDuration),
		MaxRetries: d.cfg.MaxRetries,
		Limit:      batchSize,
	})
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{Claimed: len(msgs)}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			// unclaimed leases expire and the rest is picked up next tick
			break
		}
		switch d.dispatch(ctx, msg) {
		case outcomeProcessed:
			result.Processed++
		case outcomeDeferred:
			result.Deferred++
		default:
			result.Failed++
		}
	}

	if result.Claimed > 0 {
		d.logger.Infow("outbox dispatch pass finished",
			"claimed", result.Claimed,
			"processed", result.Processed,
			"failed", result.Failed,
			"deferred", result.Deferred,
		)
	}
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *domainOutbox.Message) outcome {
	msgCtx := types.WithTenantScope(ctx, msg.TenantID)
	log := d.logger.With(
		"event_id", msg.ID,
		"event_type", msg.EventType,
		"tenant_id", msg.TenantID,
	)

	var failures, deferrals []string
	var deferUntil time.Time
	for _, c := range d.consumers {
		err := c.Consume(msgCtx, msg)
		if err == nil {
			continue
		}

		var deferred *domainOutbox.DeferredError
		if errors.As(err, &deferred) {
			log.Debugw("outbox consumer deferred", "consumer", c.Name(), "until", deferred.Until)
			deferrals = append(deferrals, c.Name()+": "+deferred.Error())
			if deferUntil.IsZero() || deferred.Until.Before(deferUntil) {
				deferUntil = deferred.Until
			}
			continue
		}

		log.Warnw("outbox consumer failed", "consumer", c.Name(), "error", err)
		failures = append(failures, c.Name()+": "+err.Error())
	}

	now := d.clock.Now()
	if len(failures) == 0 && len(deferrals) == 0 {
		if err := d.repo.MarkProcessed(msgCtx, msg.ID, now); err != nil {
			log.Errorw("failed to mark outbox message processed", "error", err)
			return outcomeFailed
		}
		return outcomeProcessed
	}

	// consumers waiting on their own schedule do not spend the retry budget
	if len(failures) == 0 {
		if !deferUntil.After(now) {
			deferUntil = now
		}
		if err := d.repo.Defer(msgCtx, msg.ID, strings.Join(deferrals, "; "), deferUntil); err != nil {
			log.Errorw("failed to defer outbox message", "error", err)
		}
		return outcomeDeferred
	}

	retries := msg.Retries + 1
	next := d.policy.NextRetryAt(now, retries)
	if err := d.repo.MarkFailed(msgCtx, msg.ID, strings.Join(failures, "; "), next); err != nil {
		log.Errorw("failed to record outbox failure", "error", err)
		return outcomeFailed
	}

	if retries >= d.cfg.MaxRetries {
		log.Errorw("outbox message exhausted retries", "retries", retries, "last_error", failures)
		d.sentry.CaptureWithTags(msgCtx, &ExhaustedError{MessageID: msg.ID, EventType: msg.EventType, Reason: strings.Join(failures, "; ")},
			map[string]string{"tenant_id": msg.TenantID, "event_type": msg.EventType})
	}
	return outcomeFailed
}

// ExhaustedError reports a message the dispatcher gave up on
type ExhaustedError struct {
	MessageID string
	EventType string
	Reason    string
}

func (e *ExhaustedError) Error() string {
	return "outbox message " + e.MessageID + " (" + e.EventType + ") exhausted retries: " + e.Reason
}
