package types

import (
	"strings"

	"github.com/samber/lo"
)

// Event types written to the outbox and delivered to webhook endpoints
const (
	EventSubscriptionRenewed       = "subscription.renewed"
	EventSubscriptionRenewalFailed = "subscription.renewal_failed"
	EventSubscriptionCanceled      = "subscription.canceled"
	EventSubscriptionExpired       = "subscription.expired"

	EventInvoiceCreated               = "invoice.created"
	EventInvoicePaid                  = "invoice.paid"
	EventInvoicePaymentFailed         = "invoice.payment_failed"
	EventInvoicePaymentRequiresAction = "invoice.requires_action"
	EventInvoicePaymentCanceled       = "invoice.payment_canceled"

	EventUsageRecorded = "usage.recorded"

	// EventWebhookPing is only ever sent by the endpoint test action
	EventWebhookPing = "webhook.ping"
)

// WebhookEventTypes lists the event types an endpoint may subscribe to
var WebhookEventTypes = []string{
	EventSubscriptionRenewed,
	EventSubscriptionRenewalFailed,
	EventSubscriptionCanceled,
	EventSubscriptionExpired,
	EventInvoiceCreated,
	EventInvoicePaid,
	EventInvoicePaymentFailed,
	EventInvoicePaymentRequiresAction,
	EventInvoicePaymentCanceled,
	EventUsageRecorded,
}

// ParseEventTypesCSV splits a comma separated event type list, dropping blanks
func ParseEventTypesCSV(csv string) []string {
	parts := lo.Map(strings.Split(csv, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}

// EventTypesCSVMatches reports whether an endpoint subscribed with csv wants
// eventType. An empty list subscribes to everything.
func EventTypesCSVMatches(csv, eventType string) bool {
	types := ParseEventTypesCSV(csv)
	if len(types) == 0 {
		return true
	}
	return lo.Contains(types, eventType)
}

// BrokerType selects where the outbox forwards events besides webhooks
type BrokerType string

const (
	BrokerNone   BrokerType = "none"
	BrokerMemory BrokerType = "memory"
	BrokerKafka  BrokerType = "kafka"
)
