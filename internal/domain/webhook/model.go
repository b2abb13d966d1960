package webhook

import (
	"encoding/json"
	"time"

	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
)

// Endpoint is a tenant-registered URL receiving signed event callbacks
type Endpoint struct {
	ID     string `db:"id" json:"id"`
	URL    string `db:"url" json:"url"`
	Secret string `db:"secret" json:"-"`
	// EventTypesCSV lists subscribed event types; empty subscribes to all
	EventTypesCSV string `db:"event_types_csv" json:"event_types_csv"`
	Active        bool   `db:"active" json:"active"`
	Description   string `db:"description" json:"description"`

	types.BaseModel
}

// Wants reports whether the endpoint should receive eventType
func (e *Endpoint) Wants(eventType string) bool {
	return e.Active && types.EventTypesCSVMatches(e.EventTypesCSV, eventType)
}

func (e *Endpoint) Validate() error {
	if e.URL == "" {
		return ierr.NewError("webhook url is required").
			WithHint("Webhook URL is required").
			Mark(ierr.ErrValidation)
	}
	if e.Secret == "" {
		return ierr.NewError("webhook secret is required").
			WithHint("Webhook secret is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Delivery is one POST attempt of one event to one endpoint. Rows are
// append-only; the latest row for (EventID, EndpointID) carries the state.
type Delivery struct {
	ID                 string          `db:"id" json:"id"`
	TenantID           string          `db:"tenant_id" json:"tenant_id"`
	EndpointID         string          `db:"endpoint_id" json:"endpoint_id"`
	EventID            string          `db:"event_id" json:"event_id"`
	EventType          string          `db:"event_type" json:"event_type"`
	Payload            json.RawMessage `db:"payload" json:"payload"`
	AttemptedAt        time.Time       `db:"attempted_at" json:"attempted_at"`
	ResponseStatusCode *int            `db:"response_status_code" json:"response_status_code,omitempty"`
	ResponseBody       string          `db:"response_body" json:"response_body"`
	RetryCount         int             `db:"retry_count" json:"retry_count"`
	Success            bool            `db:"success" json:"success"`
	NextRetryAt        *time.Time      `db:"next_retry_at" json:"next_retry_at,omitempty"`
	PermanentlyFailed  bool            `db:"permanently_failed" json:"permanently_failed"`
	Error              *string         `db:"error" json:"error,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

// Settled reports whether no further attempt will be made for this event
// and endpoint
func (d *Delivery) Settled() bool {
	return d.Success || d.PermanentlyFailed
}
