package service

import (
	"github.com/flexprice/billing/internal/cache"
	"github.com/flexprice/billing/internal/config"
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/plan"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/sentry"
	"github.com/flexprice/billing/internal/types"
	"github.com/flexprice/billing/internal/webhook"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Clock  types.Clock
	Sentry *sentry.Service
	Cache  cache.Cache

	// Repositories
	SubRepo             subscription.Repository
	ChangeLogRepo       subscription.ChangeLogRepository
	ItemRepo            subscription.ItemRepository
	PlanRepo            plan.Repository
	InvoiceRepo         invoice.Repository
	UsageRepo           usage.Repository
	WebhookEndpointRepo domainWebhook.EndpointRepository
	WebhookDeliveryRepo domainWebhook.DeliveryRepository

	// Payments
	PaymentRouter *payment.Router

	// Publishers
	EventPublisher   outbox.Publisher
	WebhookDeliverer *webhook.Deliverer
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	clock types.Clock,
	sentry *sentry.Service,
	cache cache.Cache,
	subRepo subscription.Repository,
	changeLogRepo subscription.ChangeLogRepository,
	itemRepo subscription.ItemRepository,
	planRepo plan.Repository,
	invoiceRepo invoice.Repository,
	usageRepo usage.Repository,
	webhookEndpointRepo domainWebhook.EndpointRepository,
	webhookDeliveryRepo domainWebhook.DeliveryRepository,
	paymentRouter *payment.Router,
	eventPublisher outbox.Publisher,
	webhookDeliverer *webhook.Deliverer,
) ServiceParams {
	return ServiceParams{
		Logger:              logger,
		Config:              config,
		DB:                  db,
		Clock:               clock,
		Sentry:              sentry,
		Cache:               cache,
		SubRepo:             subRepo,
		ChangeLogRepo:       changeLogRepo,
		ItemRepo:            itemRepo,
		PlanRepo:            planRepo,
		InvoiceRepo:         invoiceRepo,
		UsageRepo:           usageRepo,
		WebhookEndpointRepo: webhookEndpointRepo,
		WebhookDeliveryRepo: webhookDeliveryRepo,
		PaymentRouter:       paymentRouter,
		EventPublisher:      eventPublisher,
		WebhookDeliverer:    webhookDeliverer,
	}
}
