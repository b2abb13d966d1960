package testutil

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/config"
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/domain/plan"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	"github.com/flexprice/billing/internal/domain/webhook"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/types"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	SubscriptionRepo    subscription.Repository
	ChangeLogRepo       subscription.ChangeLogRepository
	ItemRepo            subscription.ItemRepository
	PlanRepo            plan.Repository
	InvoiceRepo         invoice.Repository
	OutboxRepo          outbox.Repository
	WebhookEndpointRepo webhook.EndpointRepository
	WebhookDeliveryRepo webhook.DeliveryRepository
	UsageRepo           usage.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	db     *MockPostgresClient
	logger *logger.Logger
	config *config.Configuration
	clock  *FakeClock
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.config = NewTestConfig()
	s.clock = NewFakeClock(time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC))
	s.setupStores()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	invoices := NewInMemoryInvoiceStore()
	s.stores = Stores{
		SubscriptionRepo:    NewInMemorySubscriptionStore(invoices),
		ChangeLogRepo:       NewInMemoryChangeLogStore(),
		ItemRepo:            NewInMemoryItemStore(),
		PlanRepo:            NewInMemoryPlanStore(),
		InvoiceRepo:         invoices,
		OutboxRepo:          NewInMemoryOutboxStore(),
		WebhookEndpointRepo: NewInMemoryWebhookEndpointStore(),
		WebhookDeliveryRepo: NewInMemoryWebhookDeliveryStore(),
		UsageRepo:           NewInMemoryUsageStore(),
	}
	s.db = NewMockPostgresClient(s.logger)
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.SubscriptionRepo.(*InMemorySubscriptionStore).Clear()
	s.stores.ChangeLogRepo.(*InMemoryChangeLogStore).Clear()
	s.stores.ItemRepo.(*InMemoryItemStore).Clear()
	s.stores.PlanRepo.(*InMemoryPlanStore).Clear()
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.OutboxRepo.(*InMemoryOutboxStore).Clear()
	s.stores.WebhookEndpointRepo.(*InMemoryWebhookEndpointStore).Clear()
	s.stores.WebhookDeliveryRepo.(*InMemoryWebhookDeliveryStore).Clear()
	s.stores.UsageRepo.(*InMemoryUsageStore).Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetClock returns the fake clock shared by the services under test
func (s *BaseServiceTestSuite) GetClock() *FakeClock {
	return s.clock
}

// GetNow returns the current fake time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.clock.Now()
}

// GetPlanStore returns the plan store for seeding prices and features
func (s *BaseServiceTestSuite) GetPlanStore() *InMemoryPlanStore {
	return s.stores.PlanRepo.(*InMemoryPlanStore)
}

// GetOutboxStore returns the outbox store for asserting recorded events
func (s *BaseServiceTestSuite) GetOutboxStore() *InMemoryOutboxStore {
	return s.stores.OutboxRepo.(*InMemoryOutboxStore)
}

// NewTestConfig returns the default configuration with jitter removed and
// in-process retry waits shortened so tests are deterministic and fast
func NewTestConfig() *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Renewal.Backoff.Jitter = 0
	cfg.Renewal.TaxRate = 0
	cfg.Outbox.Backoff.Jitter = 0
	cfg.Webhook.Backoff.Jitter = 0
	cfg.Webhook.RateLimit = 1000
	cfg.Webhook.Burst = 1000
	cfg.Payment.RetryInterval = time.Millisecond
	cfg.Payment.DefaultProvider = types.PaymentProviderMock
	cfg.Usage.DuplicateCacheTTL = time.Minute
	return cfg
}
