package api

import (
	v1 "github.com/flexprice/billing/internal/api/v1"
	"github.com/flexprice/billing/internal/config"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/rest/middleware"
	"github.com/flexprice/billing/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Invoice      *v1.InvoiceHandler
	Subscription *v1.SubscriptionHandler
	Usage        *v1.UsageHandler
	Webhook      *v1.WebhookHandler
	Operations   *v1.OperationsHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Logging.Level != types.LogLevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	v1Group.Use(middleware.TenantMiddleware(logger))
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	router.POST("/renewals/run", handlers.Operations.RunRenewals)
	router.POST("/outbox/dispatch", handlers.Operations.DispatchOutbox)

	invoices := router.Group("/invoices")
	{
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.GET("/:id/attempts", handlers.Invoice.ListAttempts)
		invoices.POST("/:id/retry", handlers.Invoice.RetryPayment)
		invoices.POST("/:id/cancel", handlers.Invoice.CancelPayment)
	}

	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.POST("/:id/cancel", handlers.Subscription.CancelSubscription)
		subscriptions.GET("/:id/changes", handlers.Subscription.ListChanges)
	}

	router.POST("/usage", handlers.Usage.RecordUsage)

	endpoints := router.Group("/webhooks/endpoints")
	{
		endpoints.POST("", handlers.Webhook.CreateEndpoint)
		endpoints.GET("", handlers.Webhook.ListEndpoints)
		endpoints.GET("/:id", handlers.Webhook.GetEndpoint)
		endpoints.PUT("/:id", handlers.Webhook.UpdateEndpoint)
		endpoints.DELETE("/:id", handlers.Webhook.DeleteEndpoint)
		endpoints.POST("/:id/activate", handlers.Webhook.ActivateEndpoint)
		endpoints.POST("/:id/deactivate", handlers.Webhook.DeactivateEndpoint)
		endpoints.POST("/:id/rotate-secret", handlers.Webhook.RotateSecret)
		endpoints.POST("/:id/ping", handlers.Webhook.PingEndpoint)
		endpoints.GET("/:id/deliveries", handlers.Webhook.ListDeliveries)
	}
}
