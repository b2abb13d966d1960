package webhook

import (
	"context"

	"github.com/flexprice/billing/internal/types"
)

// EndpointRepository persists webhook endpoints, scoped to the tenant in ctx
type EndpointRepository interface {
	Create(ctx context.Context, endpoint *Endpoint) error
	Get(ctx context.Context, id string) (*Endpoint, error)
	Update(ctx context.Context, endpoint *Endpoint) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter *types.WebhookEndpointFilter) ([]*Endpoint, error)
	// ListActive returns every active endpoint of the tenant in ctx
	ListActive(ctx context.Context) ([]*Endpoint, error)
}

// DeliveryRepository appends delivery attempts
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *Delivery) error
	// GetLatest returns the most recent attempt for the event and endpoint,
	// ErrNotFound when there is none
	GetLatest(ctx context.Context, endpointID, eventID string) (*Delivery, error)
	List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*Delivery, error)
}
