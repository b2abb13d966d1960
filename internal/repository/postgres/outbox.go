package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
)

type outboxRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewOutboxRepository(db *postgres.DB, logger *logger.Logger) outbox.Repository {
	return &outboxRepository{db: db, logger: logger}
}

func (r *outboxRepository) Create(ctx context.Context, msg *outbox.Message) error {
	query := `
		INSERT INTO outbox_messages (id, tenant_id, event_type, payload, occurred_at, retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	// payload goes in as text, lib/pq would send []byte as bytea
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		msg.ID, msg.TenantID, msg.EventType, string(msg.Payload), msg.OccurredAt, msg.Retries, msg.CreatedAt)
	return mapError(err, "outbox message", "create")
}

func (r *outboxRepository) Get(ctx context.Context, id string) (*outbox.Message, error) {
	var msg outbox.Message
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &msg, `SELECT * FROM outbox_messages WHERE id = $1`, id); err != nil {
		return nil, mapError(err, "outbox message", "get")
	}
	return &msg, nil
}

const claimPendingQuery = `
	UPDATE outbox_messages m
	SET lease_until = $2
	WHERE m.id IN (
		SELECT c.id
		FROM outbox_messages c
		WHERE
			c.processed_at IS NULL AND
			c.retries < $3 AND
			(c.lease_until IS NULL OR c.lease_until <= $1)
		ORDER BY c.occurred_at ASC, c.id ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	)
	RETURNING m.*
`

func (r *outboxRepository) ClaimPending(ctx context.Context, params outbox.ClaimParams) ([]*outbox.Message, error) {
	var msgs []*outbox.Message
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &msgs, claimPendingQuery,
		params.Now, params.LeaseUntil, params.MaxRetries, params.Limit)
	if err != nil {
		return nil, mapError(err, "outbox message", "claim")
	}
	// RETURNING does not preserve the subquery order
	sortByOccurredAt(msgs)
	return msgs, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET processed_at = $2, lease_until = NULL, last_error = NULL
		WHERE id = $1 AND processed_at IS NULL
	`
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, id, processedAt)
	return mapError(err, "outbox message", "update")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET retries = retries + 1, last_error = $2, lease_until = $3
		WHERE id = $1 AND processed_at IS NULL
	`
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, id, lastError, nextAttemptAt)
	return mapError(err, "outbox message", "update")
}

func (r *outboxRepository) Defer(ctx context.Context, id string, reason string, nextAttemptAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET last_error = $2, lease_until = $3
		WHERE id = $1 AND processed_at IS NULL
	`
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, id, reason, nextAttemptAt)
	return mapError(err, "outbox message", "update")
}

func sortByOccurredAt(msgs []*outbox.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].OccurredAt.Equal(msgs[j].OccurredAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].OccurredAt.Before(msgs[j].OccurredAt)
	})
}
