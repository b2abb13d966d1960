package outbox

import (
	"time"

	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

// SubscriptionEventPayload is recorded for every subscription.* event
type SubscriptionEventPayload struct {
	SubscriptionID      string                    `json:"subscription_id"`
	UserID              string                    `json:"user_id"`
	PlanID              string                    `json:"plan_id"`
	Status              types.SubscriptionStatus  `json:"status"`
	PreviousStatus      types.SubscriptionStatus  `json:"previous_status,omitempty"`
	CurrentPeriodStart  time.Time                 `json:"current_period_start"`
	CurrentPeriodEnd    time.Time                 `json:"current_period_end"`
	RenewAt             *time.Time                `json:"renew_at,omitempty"`
	RenewalAttemptCount int                       `json:"renewal_attempt_count"`
	CancellationReason  *types.CancellationReason `json:"cancellation_reason,omitempty"`
	InvoiceID           *string                   `json:"invoice_id,omitempty"`
}

func NewSubscriptionEventPayload(sub *subscription.Subscription, previous types.SubscriptionStatus) *SubscriptionEventPayload {
	return &SubscriptionEventPayload{
		SubscriptionID:      sub.ID,
		UserID:              sub.UserID,
		PlanID:              sub.PlanID,
		Status:              sub.SubscriptionStatus,
		PreviousStatus:      previous,
		CurrentPeriodStart:  sub.CurrentPeriodStart,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		RenewAt:             sub.RenewAt,
		RenewalAttemptCount: sub.RenewalAttemptCount,
		CancellationReason:  sub.CancellationReason,
		InvoiceID:           sub.LastInvoiceID,
	}
}

// InvoiceEventPayload is recorded for every invoice.* event
type InvoiceEventPayload struct {
	InvoiceID           string                 `json:"invoice_id"`
	InvoiceNumber       string                 `json:"invoice_number"`
	SubscriptionID      string                 `json:"subscription_id"`
	UserID              string                 `json:"user_id"`
	Currency            string                 `json:"currency"`
	Total               decimal.Decimal        `json:"total"`
	PeriodStart         time.Time              `json:"period_start"`
	PeriodEnd           time.Time              `json:"period_end"`
	PaymentStatus       types.PaymentStatus    `json:"payment_status"`
	PaymentAttemptCount int                    `json:"payment_attempt_count"`
	NextRetryAt         *time.Time             `json:"next_retry_at,omitempty"`
	Provider            *types.PaymentProvider `json:"provider,omitempty"`
	ErrorCode           *string                `json:"error_code,omitempty"`
	ErrorMessage        *string                `json:"error_message,omitempty"`
}

func NewInvoiceEventPayload(inv *invoice.Invoice) *InvoiceEventPayload {
	return &InvoiceEventPayload{
		InvoiceID:           inv.ID,
		InvoiceNumber:       inv.InvoiceNumber,
		SubscriptionID:      inv.SubscriptionID,
		UserID:              inv.UserID,
		Currency:            inv.Currency,
		Total:               inv.Total,
		PeriodStart:         inv.PeriodStart,
		PeriodEnd:           inv.PeriodEnd,
		PaymentStatus:       inv.PaymentStatus,
		PaymentAttemptCount: inv.PaymentAttemptCount,
		NextRetryAt:         inv.NextRetryAt,
		Provider:            inv.ProviderName,
		ErrorCode:           inv.LastErrorCode,
		ErrorMessage:        inv.LastErrorMessage,
	}
}

// UsageEventPayload is recorded when usage is applied to a counter
type UsageEventPayload struct {
	UsageID        string           `json:"usage_id"`
	SubscriptionID string           `json:"subscription_id"`
	UserID         string           `json:"user_id"`
	FeatureID      string           `json:"feature_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Used           decimal.Decimal  `json:"used"`
	Allotted       *decimal.Decimal `json:"allotted,omitempty"`
	CorrelationID  string           `json:"correlation_id"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

func NewUsageEventPayload(rec *usage.Record, item *subscription.Item) *UsageEventPayload {
	return &UsageEventPayload{
		UsageID:        rec.ID,
		SubscriptionID: rec.SubscriptionID,
		UserID:         rec.UserID,
		FeatureID:      rec.FeatureID,
		Quantity:       rec.Quantity,
		Used:           item.Used,
		Allotted:       item.Allotted,
		CorrelationID:  rec.CorrelationID,
		OccurredAt:     rec.OccurredAt,
	}
}
