package outbox

import (
	"encoding/json"
	"time"
)

// Message is an event written in the same transaction as the state change
// it describes. ProcessedAt moves from nil to a timestamp exactly once.
type Message struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	Retries     int             `db:"retries" json:"retries"`
	// LeaseUntil is both the claim lease and, after a failure, the time the
	// message becomes eligible again
	LeaseUntil *time.Time `db:"lease_until" json:"-"`
	LastError  *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// IsProcessed reports whether every consumer has handled the message
func (m *Message) IsProcessed() bool {
	return m.ProcessedAt != nil
}

// DeferredError is returned by a consumer that has nothing to do before
// Until. The dispatcher holds the message back without counting a retry.
type DeferredError struct {
	Until  time.Time
	Reason string
}

func (e *DeferredError) Error() string {
	return e.Reason + " (deferred until " + e.Until.UTC().Format(time.RFC3339) + ")"
}
