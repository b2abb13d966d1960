package service

import (
	"context"
	"encoding/json"

	"github.com/flexprice/billing/internal/api/dto"
	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
	"github.com/flexprice/billing/internal/webhook"
	"github.com/samber/lo"
)

type WebhookService interface {
	CreateEndpoint(ctx context.Context, req dto.CreateWebhookEndpointRequest) (*dto.WebhookEndpointSecretResponse, error)
	GetEndpoint(ctx context.Context, id string) (*dto.WebhookEndpointResponse, error)
	ListEndpoints(ctx context.Context, filter *types.WebhookEndpointFilter) (*dto.ListWebhookEndpointsResponse, error)
	UpdateEndpoint(ctx context.Context, id string, req dto.UpdateWebhookEndpointRequest) (*dto.WebhookEndpointResponse, error)
	DeleteEndpoint(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) (*dto.WebhookEndpointResponse, error)
	Deactivate(ctx context.Context, id string) (*dto.WebhookEndpointResponse, error)
	// RotateSecret replaces the signing secret; the old one stops being used
	// for the next delivery
	RotateSecret(ctx context.Context, id string) (*dto.WebhookEndpointSecretResponse, error)
	// TestPing sends a synthetic webhook.ping and returns the raw answer. A
	// rejecting endpoint is a result, not an error.
	TestPing(ctx context.Context, id string) (*dto.TestWebhookResponse, error)
	ListDeliveries(ctx context.Context, id string, filter *types.WebhookDeliveryFilter) (*dto.ListWebhookDeliveriesResponse, error)
}

type webhookService struct {
	ServiceParams
}

func NewWebhookService(params ServiceParams) WebhookService {
	return &webhookService{ServiceParams: params}
}

func (s *webhookService) CreateEndpoint(ctx context.Context, req dto.CreateWebhookEndpointRequest) (*dto.WebhookEndpointSecretResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to generate webhook secret").
			Mark(ierr.ErrSystem)
	}

	endpoint := &domainWebhook.Endpoint{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_ENDPOINT),
		URL:           req.URL,
		Secret:        secret,
		EventTypesCSV: dto.EventTypesCSV(req.EventTypes),
		Active:        lo.FromPtrOr(req.Active, true),
		Description:   req.Description,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	if err := s.WebhookEndpointRepo.Create(ctx, endpoint); err != nil {
		return nil, err
	}

	s.Logger.Infow("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"tenant_id", endpoint.TenantID,
		"event_types", endpoint.EventTypesCSV,
	)

	return &dto.WebhookEndpointSecretResponse{
		WebhookEndpointResponse: dto.NewWebhookEndpointResponse(endpoint),
		Secret:                  secret,
	}, nil
}

func (s *webhookService) GetEndpoint(ctx context.Context, id string) (*dto.WebhookEndpointResponse, error) {
	endpoint, err := s.WebhookEndpointRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewWebhookEndpointResponse(endpoint), nil
}

func (s *webhookService) ListEndpoints(ctx context.Context, filter *types.WebhookEndpointFilter) (*dto.ListWebhookEndpointsResponse, error) {
	if filter == nil {
		filter = &types.WebhookEndpointFilter{}
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewNoLimitQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}

	endpoints, err := s.WebhookEndpointRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListWebhookEndpointsResponse{
		Items: lo.Map(endpoints, func(e *domainWebhook.Endpoint, _ int) *dto.WebhookEndpointResponse {
			return dto.NewWebhookEndpointResponse(e)
		}),
	}, nil
}

func (s *webhookService) UpdateEndpoint(ctx context.Context, id string, req dto.UpdateWebhookEndpointRequest) (*dto.WebhookEndpointResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.update(ctx, id, func(e *domainWebhook.Endpoint) {
		if req.URL != nil {
			e.URL = *req.URL
		}
		if req.EventTypes != nil {
			e.EventTypesCSV = dto.EventTypesCSV(*req.EventTypes)
		}
		if req.Description != nil {
			e.Description = *req.Description
		}
	})
}

func (s *webhookService) DeleteEndpoint(ctx context.Context, id string) error {
	if err := s.WebhookEndpointRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Logger.Infow("webhook endpoint deleted", "endpoint_id", id)
	return nil
}

func (s *webhookService) Activate(ctx context.Context, id string) (*dto.WebhookEndpointResponse, error) {
	return s.update(ctx, id, func(e *domainWebhook.Endpoint) {
		e.Active = true
	})
}

func (s *webhookService) Deactivate(ctx context.Context, id string) (*dto.WebhookEndpointResponse, error) {
	return s.update(ctx, id, func(e *domainWebhook.Endpoint) {
		e.Active = false
	})
}

func (s *webhookService) RotateSecret(ctx context.Context, id string) (*dto.WebhookEndpointSecretResponse, error) {
	secret, err := webhook.GenerateSecret()
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to generate webhook secret").
			Mark(ierr.ErrSystem)
	}

	resp, err := s.update(ctx, id, func(e *domainWebhook.Endpoint) {
		e.Secret = secret
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("webhook secret rotated", "endpoint_id", id)
	return &dto.WebhookEndpointSecretResponse{
		WebhookEndpointResponse: resp,
		Secret:                  secret,
	}, nil
}

func (s *webhookService) update(ctx context.Context, id string, mutate func(e *domainWebhook.Endpoint)) (*dto.WebhookEndpointResponse, error) {
	endpoint, err := s.WebhookEndpointRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	mutate(endpoint)
	endpoint.Touch(ctx, s.Clock.Now())
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	if err := s.WebhookEndpointRepo.Update(ctx, endpoint); err != nil {
		return nil, err
	}
	return dto.NewWebhookEndpointResponse(endpoint), nil
}

func (s *webhookService) TestPing(ctx context.Context, id string) (*dto.TestWebhookResponse, error) {
	endpoint, err := s.WebhookEndpointRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	eventID := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OUTBOX_MESSAGE)
	data, err := json.Marshal(map[string]string{
		"endpoint_id": endpoint.ID,
		"message":     "webhook test",
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	payload, err := json.Marshal(&webhook.Envelope{
		ID:         eventID,
		Type:       types.EventWebhookPing,
		TenantID:   endpoint.TenantID,
		OccurredAt: s.Clock.Now(),
		Data:       data,
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	result, err := s.WebhookDeliverer.Ping(ctx, endpoint, eventID, payload)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("webhook ping sent",
		"endpoint_id", endpoint.ID,
		"reachable", result.Reachable,
		"success", result.Success,
	)
	return &dto.TestWebhookResponse{PingResult: result, EventID: eventID}, nil
}

func (s *webhookService) ListDeliveries(ctx context.Context, id string, filter *types.WebhookDeliveryFilter) (*dto.ListWebhookDeliveriesResponse, error) {
	if _, err := s.WebhookEndpointRepo.Get(ctx, id); err != nil {
		return nil, err
	}

	if filter == nil {
		filter = &types.WebhookDeliveryFilter{}
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}
	filter.EndpointID = id

	deliveries, err := s.WebhookDeliveryRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListWebhookDeliveriesResponse{Items: deliveries}, nil
}
