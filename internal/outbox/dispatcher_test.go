package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/testutil"
	"github.com/flexprice/billing/internal/types"
	"github.com/stretchr/testify/suite"
)

type recordingConsumer struct {
	mu      sync.Mutex
	name    string
	seen    []string
	tenants []string
	fail    map[string]int
}

func newRecordingConsumer(name string) *recordingConsumer {
	return &recordingConsumer{name: name, fail: make(map[string]int)}
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) Consume(ctx context.Context, msg *domainOutbox.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, msg.EventType)
	c.tenants = append(c.tenants, types.GetTenantID(ctx))
	if c.fail[msg.EventType] > 0 {
		c.fail[msg.EventType]--
		return errors.New("endpoint unreachable")
	}
	return nil
}

// waitingConsumer defers every message until wait after the current time,
// remaining times
type waitingConsumer struct {
	clock     *testutil.FakeClock
	wait      time.Duration
	remaining int
}

func (c *waitingConsumer) Name() string { return "webhook" }

func (c *waitingConsumer) Consume(ctx context.Context, msg *domainOutbox.Message) error {
	if c.remaining == 0 {
		return nil
	}
	c.remaining--
	return &domainOutbox.DeferredError{Until: c.clock.Now().Add(c.wait), Reason: "1 webhook deliveries awaiting retry"}
}

type DispatcherSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *testutil.FakeClock
	store      *testutil.InMemoryOutboxStore
	publisher  Publisher
	dispatcher *Dispatcher
	first      *recordingConsumer
	second     *recordingConsumer
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	cfg := testutil.NewTestConfig()
	cfg.Outbox.MaxRetries = 3
	cfg.Outbox.Backoff.Base = 10 * time.Second

	s.ctx = testutil.SetupContext()
	s.clock = testutil.NewFakeClock(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	s.store = testutil.NewInMemoryOutboxStore()
	log := logger.NewNopLogger()
	s.publisher = NewPublisher(s.store, s.clock, log)
	s.first = newRecordingConsumer("webhook")
	s.second = newRecordingConsumer("broker")
	s.dispatcher = NewDispatcher(cfg, s.store, s.clock, log, nil, s.first, s.second)
}

func (s *DispatcherSuite) publish(tenantID, eventType string) {
	s.Require().NoError(s.publisher.Publish(s.ctx, tenantID, eventType, map[string]string{"type": eventType}))
	s.clock.Advance(time.Millisecond)
}

func (s *DispatcherSuite) TestDispatchesInOccurrenceOrder() {
	s.publish("tenant_a", types.EventInvoiceCreated)
	s.publish("tenant_b", types.EventInvoicePaid)
	s.publish("tenant_a", types.EventSubscriptionRenewed)

	result, err := s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(&DispatchResult{Claimed: 3, Processed: 3}, result)

	s.Equal([]string{types.EventInvoiceCreated, types.EventInvoicePaid, types.EventSubscriptionRenewed}, s.first.seen)
	s.Equal(s.first.seen, s.second.seen)
	s.Equal([]string{"tenant_a", "tenant_b", "tenant_a"}, s.first.tenants)

	for _, msg := range s.store.ListByType(s.ctx, "") {
		s.NotNil(msg.ProcessedAt)
		s.Zero(msg.Retries)
	}

	// nothing left
	result, err = s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(result.Claimed)
}

func (s *DispatcherSuite) TestFailedConsumerKeepsMessagePending() {
	s.publish("tenant_a", types.EventInvoicePaid)
	s.first.fail[types.EventInvoicePaid] = 1

	now := s.clock.Now()
	result, err := s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, result.Failed)

	// the second consumer still ran
	s.Len(s.second.seen, 1)

	msg := s.store.ListByType(s.ctx, types.EventInvoicePaid)[0]
	s.Nil(msg.ProcessedAt)
	s.Equal(1, msg.Retries)
	s.Require().NotNil(msg.LastError)
	s.Contains(*msg.LastError, "webhook: endpoint unreachable")
	s.Require().NotNil(msg.LeaseUntil)
	s.Equal(now.Add(20*time.Second), *msg.LeaseUntil)

	// held back until the backoff elapses
	result, err = s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(result.Claimed)

	s.clock.Advance(21 * time.Second)
	result, err = s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, result.Processed)

	msg = s.store.ListByType(s.ctx, types.EventInvoicePaid)[0]
	s.NotNil(msg.ProcessedAt)
	s.Nil(msg.LastError)
}

func (s *DispatcherSuite) TestGivesUpAfterMaxRetries() {
	s.publish("tenant_a", types.EventInvoicePaid)
	s.first.fail[types.EventInvoicePaid] = 100

	for i := 0; i < 3; i++ {
		result, err := s.dispatcher.DispatchPending(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(1, result.Claimed)
		s.clock.Advance(time.Hour)
	}

	result, err := s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(result.Claimed)

	msg := s.store.ListByType(s.ctx, types.EventInvoicePaid)[0]
	s.Nil(msg.ProcessedAt)
	s.Equal(3, msg.Retries)
}

func (s *DispatcherSuite) TestDeferredConsumerDoesNotSpendRetries() {
	cfg := testutil.NewTestConfig()
	cfg.Outbox.MaxRetries = 3
	waiting := &waitingConsumer{clock: s.clock, wait: 10 * time.Minute, remaining: 5}
	s.dispatcher = NewDispatcher(cfg, s.store, s.clock, logger.NewNopLogger(), nil, waiting, s.second)
	s.publish("tenant_a", types.EventInvoicePaid)

	// more deferrals than the outbox retry budget
	for i := 0; i < 5; i++ {
		now := s.clock.Now()
		result, err := s.dispatcher.DispatchPending(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(&DispatchResult{Claimed: 1, Deferred: 1}, result)

		msg := s.store.ListByType(s.ctx, types.EventInvoicePaid)[0]
		s.Zero(msg.Retries)
		s.Require().NotNil(msg.LeaseUntil)
		s.Equal(now.Add(10*time.Minute), *msg.LeaseUntil)
		s.Require().NotNil(msg.LastError)
		s.Contains(*msg.LastError, "awaiting retry")

		// not claimed again before the consumer's retry
		result, err = s.dispatcher.DispatchPending(s.ctx, 10)
		s.Require().NoError(err)
		s.Zero(result.Claimed)

		s.clock.Advance(10 * time.Minute)
	}

	result, err := s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, result.Processed)
	s.NotNil(s.store.ListByType(s.ctx, types.EventInvoicePaid)[0].ProcessedAt)
}

func (s *DispatcherSuite) TestFailureAlongsideDeferralSpendsRetry() {
	waiting := &waitingConsumer{clock: s.clock, wait: time.Hour, remaining: 1}
	s.dispatcher.Register(waiting)
	s.publish("tenant_a", types.EventInvoicePaid)
	s.first.fail[types.EventInvoicePaid] = 1

	now := s.clock.Now()
	result, err := s.dispatcher.DispatchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, result.Failed)

	msg := s.store.ListByType(s.ctx, types.EventInvoicePaid)[0]
	s.Equal(1, msg.Retries)
	s.Equal(now.Add(20*time.Second), *msg.LeaseUntil)
}

func (s *DispatcherSuite) TestBatchSizeBoundsClaim() {
	for i := 0; i < 5; i++ {
		s.publish("tenant_a", types.EventUsageRecorded)
	}

	result, err := s.dispatcher.DispatchPending(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(2, result.Claimed)

	result, err = s.dispatcher.DispatchPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(3, result.Claimed)
}

func (s *DispatcherSuite) TestPublishRequiresEventType() {
	err := s.publisher.Publish(s.ctx, "tenant_a", "", nil)
	s.Error(err)
}
