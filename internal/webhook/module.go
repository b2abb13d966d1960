package webhook

import (
	"go.uber.org/fx"
)

// Module provides the webhook delivery components
var Module = fx.Options(
	fx.Provide(
		// Deliverer signs, sends and records attempts
		NewDeliverer,

		// Consumer fans outbox messages out to endpoints
		NewConsumer,
	),
)
