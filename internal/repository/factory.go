package repository

import (
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/domain/plan"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	"github.com/flexprice/billing/internal/domain/webhook"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	postgresRepo "github.com/flexprice/billing/internal/repository/postgres"
)

type RepositoryType string

const (
	PostgresRepo RepositoryType = "postgres"
)

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewSubscriptionChangeLogRepository(db *postgres.DB, logger *logger.Logger) subscription.ChangeLogRepository {
	return postgresRepo.NewChangeLogRepository(db, logger)
}

func NewSubscriptionItemRepository(db *postgres.DB, logger *logger.Logger) subscription.ItemRepository {
	return postgresRepo.NewSubscriptionItemRepository(db, logger)
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return postgresRepo.NewPlanRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewOutboxRepository(db *postgres.DB, logger *logger.Logger) outbox.Repository {
	return postgresRepo.NewOutboxRepository(db, logger)
}

func NewWebhookEndpointRepository(db *postgres.DB, logger *logger.Logger) webhook.EndpointRepository {
	return postgresRepo.NewWebhookEndpointRepository(db, logger)
}

func NewWebhookDeliveryRepository(db *postgres.DB, logger *logger.Logger) webhook.DeliveryRepository {
	return postgresRepo.NewWebhookDeliveryRepository(db, logger)
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}
