package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/billing/internal/api/dto"
	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
	"github.com/flexprice/billing/internal/webhook"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type WebhookServiceSuite struct {
	billingSuite
	service WebhookService
	server  *httptest.Server

	mu       sync.Mutex
	status   int
	received []*http.Request
	bodies   [][]byte
}

func TestWebhookService(t *testing.T) {
	suite.Run(t, new(WebhookServiceSuite))
}

func (s *WebhookServiceSuite) SetupTest() {
	s.billingSuite.SetupTest()
	s.service = NewWebhookService(s.params)

	s.received = nil
	s.bodies = nil
	s.status = http.StatusOK
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.received = append(s.received, r)
		s.bodies = append(s.bodies, body)
		status := s.status
		s.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":false,"reason":"schema"}`))
	}))
}

func (s *WebhookServiceSuite) TearDownTest() {
	s.server.Close()
	s.billingSuite.TearDownTest()
}

func (s *WebhookServiceSuite) createEndpoint(eventTypes ...string) *dto.WebhookEndpointSecretResponse {
	resp, err := s.service.CreateEndpoint(s.GetContext(), dto.CreateWebhookEndpointRequest{
		URL:         s.server.URL + "/hooks",
		EventTypes:  eventTypes,
		Description: "billing events",
	})
	s.Require().NoError(err)
	return resp
}

func (s *WebhookServiceSuite) TestCreateEndpoint() {
	resp := s.createEndpoint(types.EventInvoicePaid, types.EventSubscriptionCanceled)

	s.NotEmpty(resp.ID)
	s.True(resp.Active)
	s.NotEmpty(resp.Secret)
	s.Equal([]string{types.EventInvoicePaid, types.EventSubscriptionCanceled}, resp.EventTypes)

	// the secret is only ever shown on creation and rotation
	got, err := s.service.GetEndpoint(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(resp.URL, got.URL)
	raw, err := json.Marshal(got)
	s.NoError(err)
	s.NotContains(string(raw), resp.Secret)
}

func (s *WebhookServiceSuite) TestCreateEndpointValidation() {
	_, err := s.service.CreateEndpoint(s.GetContext(), dto.CreateWebhookEndpointRequest{URL: "not a url"})
	s.True(ierr.IsValidation(err))

	_, err = s.service.CreateEndpoint(s.GetContext(), dto.CreateWebhookEndpointRequest{
		URL:        s.server.URL,
		EventTypes: []string{"invoice.exploded"},
	})
	s.True(ierr.IsValidation(err))

	inactive, err := s.service.CreateEndpoint(s.GetContext(), dto.CreateWebhookEndpointRequest{
		URL:    s.server.URL,
		Active: lo.ToPtr(false),
	})
	s.NoError(err)
	s.False(inactive.Active)
}

func (s *WebhookServiceSuite) TestUpdateAndToggleEndpoint() {
	created := s.createEndpoint()

	updated, err := s.service.UpdateEndpoint(s.GetContext(), created.ID, dto.UpdateWebhookEndpointRequest{
		EventTypes:  &[]string{types.EventUsageRecorded},
		Description: lo.ToPtr("usage only"),
	})
	s.NoError(err)
	s.Equal([]string{types.EventUsageRecorded}, updated.EventTypes)
	s.Equal("usage only", updated.Description)
	s.Equal(created.URL, updated.URL)

	deactivated, err := s.service.Deactivate(s.GetContext(), created.ID)
	s.NoError(err)
	s.False(deactivated.Active)

	active, err := s.service.ListEndpoints(s.GetContext(), &types.WebhookEndpointFilter{ActiveOnly: true})
	s.NoError(err)
	s.Empty(active.Items)

	activated, err := s.service.Activate(s.GetContext(), created.ID)
	s.NoError(err)
	s.True(activated.Active)

	all, err := s.service.ListEndpoints(s.GetContext(), nil)
	s.NoError(err)
	s.Len(all.Items, 1)
}

func (s *WebhookServiceSuite) TestDeleteEndpoint() {
	created := s.createEndpoint()

	s.NoError(s.service.DeleteEndpoint(s.GetContext(), created.ID))

	_, err := s.service.GetEndpoint(s.GetContext(), created.ID)
	s.True(ierr.IsNotFound(err))
	s.True(ierr.IsNotFound(s.service.DeleteEndpoint(s.GetContext(), created.ID)))

	list, err := s.service.ListEndpoints(s.GetContext(), nil)
	s.NoError(err)
	s.Empty(list.Items)
}

func (s *WebhookServiceSuite) TestRotateSecretSignsWithNewSecret() {
	created := s.createEndpoint()

	rotated, err := s.service.RotateSecret(s.GetContext(), created.ID)
	s.NoError(err)
	s.NotEqual(created.Secret, rotated.Secret)

	_, err = s.service.TestPing(s.GetContext(), created.ID)
	s.NoError(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Require().Len(s.received, 1)
	req, body := s.received[0], s.bodies[0]
	ts, err := strconv.ParseInt(req.Header.Get(webhook.HeaderTimestamp), 10, 64)
	s.Require().NoError(err)

	signature := req.Header.Get(webhook.HeaderSignature)
	s.Equal(webhook.Sign(rotated.Secret, ts, body), signature)
	s.NotEqual(webhook.Sign(created.Secret, ts, body), signature)
}

func (s *WebhookServiceSuite) TestPingReportsRejection() {
	created := s.createEndpoint()
	s.mu.Lock()
	s.status = http.StatusBadRequest
	s.mu.Unlock()

	resp, err := s.service.TestPing(s.GetContext(), created.ID)
	s.NoError(err)
	s.True(resp.Reachable)
	s.False(resp.Success)
	s.Require().NotNil(resp.StatusCode)
	s.Equal(http.StatusBadRequest, *resp.StatusCode)
	s.Contains(resp.Body, "schema")
	s.NotEmpty(resp.EventID)

	s.mu.Lock()
	req, body := s.received[0], s.bodies[0]
	s.mu.Unlock()
	s.Equal(types.EventWebhookPing, req.Header.Get(webhook.HeaderEvent))
	s.Equal(resp.EventID, req.Header.Get(webhook.HeaderID))

	var envelope webhook.Envelope
	s.NoError(json.Unmarshal(body, &envelope))
	s.Equal(types.EventWebhookPing, envelope.Type)

	// pings are not part of the delivery log
	deliveries, err := s.service.ListDeliveries(s.GetContext(), created.ID, nil)
	s.NoError(err)
	s.Empty(deliveries.Items)
}

func (s *WebhookServiceSuite) TestPingUnreachableEndpoint() {
	created := s.createEndpoint()
	s.server.Close()

	resp, err := s.service.TestPing(s.GetContext(), created.ID)
	s.NoError(err)
	s.False(resp.Reachable)
	s.False(resp.Success)
	s.NotEmpty(resp.Error)
}

func (s *WebhookServiceSuite) TestListDeliveries() {
	created := s.createEndpoint()
	other := s.createEndpoint()
	ctx := s.GetContext()

	for i, endpointID := range []string{created.ID, created.ID, other.ID} {
		s.NoError(s.GetStores().WebhookDeliveryRepo.Create(ctx, &domainWebhook.Delivery{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_DELIVERY),
			TenantID:    types.GetTenantID(ctx),
			EndpointID:  endpointID,
			EventID:     "evt_" + strconv.Itoa(i),
			EventType:   types.EventInvoicePaid,
			AttemptedAt: s.GetNow(),
			Success:     true,
			CreatedAt:   s.GetNow().Add(time.Duration(i) * time.Second),
		}))
	}

	resp, err := s.service.ListDeliveries(ctx, created.ID, nil)
	s.NoError(err)
	s.Len(resp.Items, 2)
	for _, d := range resp.Items {
		s.Equal(created.ID, d.EndpointID)
	}

	byEvent, err := s.service.ListDeliveries(ctx, created.ID, &types.WebhookDeliveryFilter{EventID: "evt_1"})
	s.NoError(err)
	s.Require().Len(byEvent.Items, 1)
	s.Equal("evt_1", byEvent.Items[0].EventID)

	_, err = s.service.ListDeliveries(ctx, "whep_missing", nil)
	s.True(ierr.IsNotFound(err))
}
