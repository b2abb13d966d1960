package main

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/api"
	v1 "github.com/flexprice/billing/internal/api/v1"
	"github.com/flexprice/billing/internal/cache"
	"github.com/flexprice/billing/internal/config"
	domainOutbox "github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/httpclient"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/payment/iyzico"
	"github.com/flexprice/billing/internal/payment/mock"
	"github.com/flexprice/billing/internal/payment/stripe"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/pubsub"
	"github.com/flexprice/billing/internal/pubsub/broker"
	"github.com/flexprice/billing/internal/repository"
	"github.com/flexprice/billing/internal/scheduler"
	"github.com/flexprice/billing/internal/sentry"
	"github.com/flexprice/billing/internal/service"
	"github.com/flexprice/billing/internal/types"
	"github.com/flexprice/billing/internal/webhook"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,

			// Clock
			types.NewSystemClock,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,
			provideDBClient,

			// HTTP Client
			httpclient.NewDefaultClient,

			// Repositories
			repository.NewSubscriptionRepository,
			repository.NewSubscriptionChangeLogRepository,
			repository.NewSubscriptionItemRepository,
			repository.NewPlanRepository,
			repository.NewInvoiceRepository,
			repository.NewOutboxRepository,
			repository.NewWebhookEndpointRepository,
			repository.NewWebhookDeliveryRepository,
			repository.NewUsageRepository,

			// Events
			outbox.NewPublisher,
			provideDispatcher,

			// Payments
			providePaymentRouter,
		),
	)

	// Webhook delivery and event broker
	opts = append(opts, webhook.Module, broker.Module)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewInvoiceService,
			service.NewRenewalService,
			service.NewUsageService,
			service.NewWebhookService,
		),
	)

	// Scheduler and API
	opts = append(opts,
		scheduler.Module,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			registerDatabase,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideDBClient(db *postgres.DB) postgres.IClient {
	return db
}

// providePaymentRouter registers every provider the build knows. Providers
// without credentials stay registered and report a configuration error when
// selected.
func providePaymentRouter(cfg *config.Configuration, log *logger.Logger, client httpclient.Client) (*payment.Router, error) {
	router := payment.NewRouter(cfg, log,
		mock.NewProvider(cfg),
		stripe.NewProvider(cfg, log),
		iyzico.NewProvider(cfg, client, log),
	)
	if err := router.ValidateConfig(); err != nil {
		return nil, err
	}
	log.Infow("payment providers registered",
		"providers", router.Providers(),
		"default", cfg.Payment.DefaultProvider,
	)
	return router, nil
}

// provideDispatcher wires the outbox consumers: webhook fan-out always, the
// broker forwarder when a broker is configured
func provideDispatcher(
	cfg *config.Configuration,
	repo domainOutbox.Repository,
	clock types.Clock,
	log *logger.Logger,
	sentryService *sentry.Service,
	webhookConsumer *webhook.Consumer,
	ps pubsub.PubSub,
) *outbox.Dispatcher {
	dispatcher := outbox.NewDispatcher(cfg, repo, clock, log, sentryService, webhookConsumer)
	if ps != nil {
		dispatcher.Register(broker.NewConsumer(cfg, ps, log))
	}
	return dispatcher
}

func provideHandlers(
	log *logger.Logger,
	invoiceService service.InvoiceService,
	renewalService service.RenewalService,
	usageService service.UsageService,
	webhookService service.WebhookService,
	sched *scheduler.Scheduler,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(log),
		Invoice:      v1.NewInvoiceHandler(invoiceService, log),
		Subscription: v1.NewSubscriptionHandler(renewalService, log),
		Usage:        v1.NewUsageHandler(usageService, log),
		Webhook:      v1.NewWebhookHandler(webhookService, log),
		Operations:   v1.NewOperationsHandler(sched, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, log)
}

// registerDatabase applies pending migrations on start when auto_migrate is
// set and closes the pool on stop
func registerDatabase(lc fx.Lifecycle, cfg *config.Configuration, db *postgres.DB, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Postgres.AutoMigrate {
				return nil
			}
			log.Info("applying database migrations")
			return db.Migrate(ctx)
		},
		OnStop: func(ctx context.Context) error {
			log.Info("closing database")
			db.Close()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		sched.RegisterWithLifecycle(lc)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeWorker:
		sched.RegisterWithLifecycle(lc)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}
