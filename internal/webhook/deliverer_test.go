package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/billing/internal/config"
	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/retry"
	"github.com/flexprice/billing/internal/testutil"
	"github.com/flexprice/billing/internal/types"
	"github.com/stretchr/testify/suite"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

// endpointServer answers with a configurable status and body and records
// every request it receives
type endpointServer struct {
	*httptest.Server
	mu       sync.Mutex
	status   int
	body     string
	location string
	requests []capturedRequest
}

func newEndpointServer() *endpointServer {
	es := &endpointServer{status: http.StatusOK, body: "ok"}
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		es.mu.Lock()
		defer es.mu.Unlock()
		es.requests = append(es.requests, capturedRequest{header: r.Header.Clone(), body: body})
		if es.location != "" {
			w.Header().Set("Location", es.location)
		}
		w.WriteHeader(es.status)
		_, _ = w.Write([]byte(es.body))
	}))
	return es
}

func (es *endpointServer) respond(status int, body string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.status = status
	es.body = body
}

func (es *endpointServer) received() []capturedRequest {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]capturedRequest(nil), es.requests...)
}

type DelivererSuite struct {
	suite.Suite
	ctx        context.Context
	cfg        *config.Configuration
	clock      *testutil.FakeClock
	deliveries *testutil.InMemoryWebhookDeliveryStore
	server     *endpointServer
	endpoint   *domainWebhook.Endpoint
	deliverer  *Deliverer
}

func TestDeliverer(t *testing.T) {
	suite.Run(t, new(DelivererSuite))
}

func (s *DelivererSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.cfg = testutil.NewTestConfig()
	s.cfg.Webhook.MaxRetries = 3
	s.cfg.Webhook.ResponseBodyLimit = 8
	s.clock = testutil.NewFakeClock(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	s.deliveries = testutil.NewInMemoryWebhookDeliveryStore()
	s.server = newEndpointServer()
	s.endpoint = &domainWebhook.Endpoint{
		ID:        "whep_1",
		URL:       s.server.URL,
		Secret:    "whsec_test",
		Active:    true,
		BaseModel: types.GetDefaultBaseModel(s.ctx),
	}
	s.deliverer = NewDeliverer(s.cfg, s.deliveries, s.clock, logger.NewNopLogger(), nil)
}

func (s *DelivererSuite) TearDownTest() {
	s.server.Close()
}

func (s *DelivererSuite) TestSignedDeliverySucceeds() {
	payload := []byte(`{"id":"evt_1"}`)

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, payload, 0)
	s.Require().NoError(err)
	s.True(delivery.Success)
	s.True(delivery.Settled())
	s.Nil(delivery.NextRetryAt)
	s.Nil(delivery.Error)
	s.Equal(http.StatusOK, *delivery.ResponseStatusCode)

	reqs := s.server.received()
	s.Require().Len(reqs, 1)
	s.Equal(payload, reqs[0].body)
	s.Equal("evt_1", reqs[0].header.Get(HeaderID))
	s.Equal(types.EventInvoicePaid, reqs[0].header.Get(HeaderEvent))

	ts, err := strconv.ParseInt(reqs[0].header.Get(HeaderTimestamp), 10, 64)
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Unix(), ts)
	s.Equal(Sign(s.endpoint.Secret, ts, payload), reqs[0].header.Get(HeaderSignature))

	stored, err := s.deliveries.GetLatest(s.ctx, s.endpoint.ID, "evt_1")
	s.Require().NoError(err)
	s.Equal(delivery.ID, stored.ID)
}

func (s *DelivererSuite) TestServerErrorSchedulesRetry() {
	s.server.respond(http.StatusInternalServerError, "boom")

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, []byte(`{}`), 1)
	s.Require().NoError(err)
	s.False(delivery.Success)
	s.False(delivery.PermanentlyFailed)
	s.Equal(http.StatusInternalServerError, *delivery.ResponseStatusCode)
	s.Equal("boom", delivery.ResponseBody)
	s.Require().NotNil(delivery.Error)
	s.Contains(*delivery.Error, "500")
	s.Require().NotNil(delivery.NextRetryAt)
	// second failure
	s.Equal(s.clock.Now().Add(4*s.cfg.Webhook.Backoff.Base), *delivery.NextRetryAt)
}

func (s *DelivererSuite) TestFirstFailureBacksOffLikeRenewal() {
	s.server.respond(http.StatusBadGateway, "")

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, []byte(`{}`), 0)
	s.Require().NoError(err)
	s.Require().NotNil(delivery.NextRetryAt)

	policy := retry.NewPolicy(s.cfg.Webhook.Backoff)
	s.Equal(policy.NextRetryAt(s.clock.Now(), 1), *delivery.NextRetryAt)
	s.Equal(s.clock.Now().Add(2*s.cfg.Webhook.Backoff.Base), *delivery.NextRetryAt)
}

func (s *DelivererSuite) TestRedirectIsAFailure() {
	s.server.location = "https://elsewhere.example.com/hook"
	s.server.respond(http.StatusFound, "")

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, []byte(`{}`), 0)
	s.Require().NoError(err)
	s.False(delivery.Success)
	s.Equal(http.StatusFound, *delivery.ResponseStatusCode)
	s.Require().NotNil(delivery.Error)
	s.Contains(*delivery.Error, "redirect")
	s.Len(s.server.received(), 1)
}

func (s *DelivererSuite) TestLastRetryMarksPermanentlyFailed() {
	s.server.respond(http.StatusServiceUnavailable, "down")

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, []byte(`{}`), s.cfg.Webhook.MaxRetries)
	s.Require().NoError(err)
	s.True(delivery.PermanentlyFailed)
	s.True(delivery.Settled())
	s.Nil(delivery.NextRetryAt)
}

func (s *DelivererSuite) TestResponseBodyIsTruncated() {
	s.server.respond(http.StatusOK, "0123456789abcdef")

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, []byte(`{}`), 0)
	s.Require().NoError(err)
	s.Equal("01234567", delivery.ResponseBody)
}

func (s *DelivererSuite) TestUnreachableEndpoint() {
	s.server.Close()

	delivery, err := s.deliverer.Deliver(s.ctx, s.endpoint, "evt_1", types.EventInvoicePaid, []byte(`{}`), 0)
	s.Require().NoError(err)
	s.False(delivery.Success)
	s.Nil(delivery.ResponseStatusCode)
	s.NotNil(delivery.NextRetryAt)
}

func (s *DelivererSuite) TestPingDoesNotRecordDelivery() {
	s.server.respond(http.StatusBadRequest, "unknown event")

	res, err := s.deliverer.Ping(s.ctx, s.endpoint, "evt_ping", []byte(`{"type":"webhook.ping"}`))
	s.Require().NoError(err)
	s.True(res.Reachable)
	s.False(res.Success)
	s.Equal(http.StatusBadRequest, *res.StatusCode)
	s.Equal("unknown ", res.Body)
	s.NotEmpty(res.Error)

	reqs := s.server.received()
	s.Require().Len(reqs, 1)
	s.Equal(types.EventWebhookPing, reqs[0].header.Get(HeaderEvent))

	deliveries, err := s.deliveries.List(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(deliveries)
}
