package dto

import (
	"strings"
	"time"

	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
	"github.com/flexprice/billing/internal/validator"
	"github.com/flexprice/billing/internal/webhook"
	"github.com/samber/lo"
)

type CreateWebhookEndpointRequest struct {
	URL         string   `json:"url" validate:"required,url,max=2048"`
	EventTypes  []string `json:"event_types"`
	Description string   `json:"description" validate:"max=255"`
	// Active defaults to true
	Active *bool `json:"active,omitempty"`
}

func (r *CreateWebhookEndpointRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validateEventTypes(r.EventTypes)
}

type UpdateWebhookEndpointRequest struct {
	URL         *string   `json:"url,omitempty" validate:"omitempty,url,max=2048"`
	EventTypes  *[]string `json:"event_types,omitempty"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=255"`
}

func (r *UpdateWebhookEndpointRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.EventTypes != nil {
		return validateEventTypes(*r.EventTypes)
	}
	return nil
}

func validateEventTypes(eventTypes []string) error {
	unknown := lo.Filter(eventTypes, func(t string, _ int) bool {
		return !lo.Contains(types.WebhookEventTypes, strings.TrimSpace(t))
	})
	if len(unknown) > 0 {
		return ierr.NewError("unknown event types").
			WithHintf("Unknown event types: %s", strings.Join(unknown, ", ")).
			WithReportableDetails(map[string]any{"allowed": types.WebhookEventTypes}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// EventTypesCSV joins event types the way endpoints store them
func EventTypesCSV(eventTypes []string) string {
	return strings.Join(lo.Uniq(lo.Compact(lo.Map(eventTypes, func(t string, _ int) string {
		return strings.TrimSpace(t)
	}))), ",")
}

// WebhookEndpointResponse never carries the secret
type WebhookEndpointResponse struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	EventTypes  []string     `json:"event_types"`
	Active      bool         `json:"active"`
	Description string       `json:"description"`
	TenantID    string       `json:"tenant_id"`
	Status      types.Status `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func NewWebhookEndpointResponse(e *domainWebhook.Endpoint) *WebhookEndpointResponse {
	return &WebhookEndpointResponse{
		ID:          e.ID,
		URL:         e.URL,
		EventTypes:  types.ParseEventTypesCSV(e.EventTypesCSV),
		Active:      e.Active,
		Description: e.Description,
		TenantID:    e.TenantID,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// WebhookEndpointSecretResponse is returned on creation and rotation, the
// only times the signing secret is shown
type WebhookEndpointSecretResponse struct {
	*WebhookEndpointResponse
	Secret string `json:"secret"`
}

type ListWebhookEndpointsResponse struct {
	Items []*WebhookEndpointResponse `json:"items"`
}

type ListWebhookDeliveriesResponse struct {
	Items []*domainWebhook.Delivery `json:"items"`
}

type TestWebhookResponse struct {
	*webhook.PingResult
	EventID string `json:"event_id"`
}
