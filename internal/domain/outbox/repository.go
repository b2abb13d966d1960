package outbox

import (
	"context"
	"time"
)

// ClaimParams selects pending messages for a dispatch pass
type ClaimParams struct {
	Now        time.Time
	LeaseUntil time.Time
	MaxRetries int
	Limit      int
}

// Repository persists outbox messages
type Repository interface {
	// Create inserts the message using the transaction carried by ctx
	Create(ctx context.Context, msg *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	// ClaimPending leases up to Limit unprocessed messages whose lease has
	// expired and whose retries are below MaxRetries, oldest OccurredAt first
	ClaimPending(ctx context.Context, params ClaimParams) ([]*Message, error)
	// MarkProcessed sets ProcessedAt if it is still nil
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	// MarkFailed increments Retries, records the error and holds the message
	// back until nextAttemptAt
	MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error
	// Defer records reason and holds the message back until nextAttemptAt
	// without touching Retries
	Defer(ctx context.Context, id string, reason string, nextAttemptAt time.Time) error
}
