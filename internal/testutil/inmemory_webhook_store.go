package testutil

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/domain/webhook"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
)

// InMemoryWebhookEndpointStore implements webhook.EndpointRepository
type InMemoryWebhookEndpointStore struct {
	*InMemoryStore[*webhook.Endpoint]
}

func NewInMemoryWebhookEndpointStore() *InMemoryWebhookEndpointStore {
	return &InMemoryWebhookEndpointStore{InMemoryStore: NewInMemoryStore[*webhook.Endpoint]()}
}

func copyEndpoint(e *webhook.Endpoint) *webhook.Endpoint {
	cp := *e
	return &cp
}

func (s *InMemoryWebhookEndpointStore) Create(ctx context.Context, endpoint *webhook.Endpoint) error {
	return s.InMemoryStore.Create(ctx, endpoint.ID, copyEndpoint(endpoint))
}

func (s *InMemoryWebhookEndpointStore) Get(ctx context.Context, id string) (*webhook.Endpoint, error) {
	e, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, e.TenantID) || e.Status != types.StatusPublished {
		return nil, ierr.NewErrorf("webhook endpoint %s not found", id).
			WithHintf("Webhook endpoint %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyEndpoint(e), nil
}

func (s *InMemoryWebhookEndpointStore) Update(ctx context.Context, endpoint *webhook.Endpoint) error {
	if _, err := s.Get(ctx, endpoint.ID); err != nil {
		return err
	}
	endpoint.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, endpoint.ID, copyEndpoint(endpoint))
}

func (s *InMemoryWebhookEndpointStore) Delete(ctx context.Context, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	e.Status = types.StatusDeleted
	e.Active = false
	return s.InMemoryStore.Update(ctx, id, e)
}

func endpointFilterFn(ctx context.Context, e *webhook.Endpoint, filter interface{}) bool {
	if !CheckTenantFilter(ctx, e.TenantID) || e.Status != types.StatusPublished {
		return false
	}
	if f, ok := filter.(*types.WebhookEndpointFilter); ok && f != nil && f.ActiveOnly && !e.Active {
		return false
	}
	return true
}

func (s *InMemoryWebhookEndpointStore) List(ctx context.Context, filter *types.WebhookEndpointFilter) ([]*webhook.Endpoint, error) {
	endpoints, err := s.InMemoryStore.List(ctx, filterArg(filter), endpointFilterFn, func(i, j *webhook.Endpoint) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*webhook.Endpoint, len(endpoints))
	for i, e := range endpoints {
		out[i] = copyEndpoint(e)
	}
	return out, nil
}

func (s *InMemoryWebhookEndpointStore) ListActive(ctx context.Context) ([]*webhook.Endpoint, error) {
	return s.List(ctx, &types.WebhookEndpointFilter{ActiveOnly: true})
}

// InMemoryWebhookDeliveryStore implements webhook.DeliveryRepository
type InMemoryWebhookDeliveryStore struct {
	*InMemoryStore[*webhook.Delivery]
}

func NewInMemoryWebhookDeliveryStore() *InMemoryWebhookDeliveryStore {
	return &InMemoryWebhookDeliveryStore{InMemoryStore: NewInMemoryStore[*webhook.Delivery]()}
}

func (s *InMemoryWebhookDeliveryStore) Create(ctx context.Context, d *webhook.Delivery) error {
	cp := *d
	return s.InMemoryStore.Create(ctx, d.ID, &cp)
}

func (s *InMemoryWebhookDeliveryStore) GetLatest(ctx context.Context, endpointID, eventID string) (*webhook.Delivery, error) {
	deliveries, _ := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, d *webhook.Delivery, _ interface{}) bool {
		return CheckTenantFilter(ctx, d.TenantID) && d.EndpointID == endpointID && d.EventID == eventID
	}, deliveryNewestFirst)
	if len(deliveries) == 0 {
		return nil, ierr.NewError("no delivery recorded").
			WithHint("Webhook delivery not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *deliveries[0]
	return &cp, nil
}

func (s *InMemoryWebhookDeliveryStore) List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*webhook.Delivery, error) {
	deliveries, err := s.InMemoryStore.List(ctx, filterArg(filter), func(ctx context.Context, d *webhook.Delivery, f interface{}) bool {
		if !CheckTenantFilter(ctx, d.TenantID) {
			return false
		}
		df, ok := f.(*types.WebhookDeliveryFilter)
		if !ok || df == nil {
			return true
		}
		if df.EndpointID != "" && d.EndpointID != df.EndpointID {
			return false
		}
		return df.EventID == "" || d.EventID == df.EventID
	}, deliveryNewestFirst)
	if err != nil {
		return nil, err
	}
	out := make([]*webhook.Delivery, len(deliveries))
	for i, d := range deliveries {
		cp := *d
		out[i] = &cp
	}
	return out, nil
}

func deliveryNewestFirst(i, j *webhook.Delivery) bool {
	if i.RetryCount != j.RetryCount {
		return i.RetryCount > j.RetryCount
	}
	return i.AttemptedAt.After(j.AttemptedAt)
}

var (
	_ webhook.EndpointRepository = (*InMemoryWebhookEndpointStore)(nil)
	_ webhook.DeliveryRepository = (*InMemoryWebhookDeliveryStore)(nil)
)
