package invoice

import (
	"time"

	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is the bill for one subscription period. Exactly one invoice
// exists per (subscription, period), enforced through IdempotencyKey.
type Invoice struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`
	UserID         string `db:"user_id" json:"user_id"`
	InvoiceNumber  string `db:"invoice_number" json:"invoice_number"`
	IdempotencyKey string `db:"idempotency_key" json:"-"`
	Currency       string `db:"currency" json:"currency"`

	Subtotal decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax      decimal.Decimal `db:"tax" json:"tax"`
	Total    decimal.Decimal `db:"total" json:"total"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`
	DueDate     time.Time `db:"due_date" json:"due_date"`

	PaymentStatus       types.PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentAttemptCount int                 `db:"payment_attempt_count" json:"payment_attempt_count"`
	NextRetryAt         *time.Time          `db:"next_retry_at" json:"next_retry_at,omitempty"`
	PaidAt              *time.Time          `db:"paid_at" json:"paid_at,omitempty"`
	FailedAt            *time.Time          `db:"failed_at" json:"failed_at,omitempty"`

	// ProviderName is the preferred provider when set before charging and
	// the provider that handled the last attempt afterwards
	ProviderName      *types.PaymentProvider `db:"provider_name" json:"provider_name,omitempty"`
	ProviderReference *string                `db:"provider_reference" json:"provider_reference,omitempty"`
	RequiresAction    bool                   `db:"requires_action" json:"requires_action"`
	LastErrorCode     *string                `db:"last_error_code" json:"last_error_code,omitempty"`
	LastErrorMessage  *string                `db:"last_error_message" json:"last_error_message,omitempty"`

	Version int64 `db:"version" json:"version"`

	LineItems []*LineItem `db:"-" json:"line_items,omitempty"`

	types.BaseModel
}

// Validate checks the money and period invariants of the invoice
func (i *Invoice) Validate() error {
	if i.SubscriptionID == "" {
		return ierr.NewError("invoice requires a subscription").
			WithHint("Subscription is required").
			Mark(ierr.ErrValidation)
	}
	if i.Currency == "" {
		return ierr.NewError("invoice requires a currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	if i.Subtotal.IsNegative() || i.Tax.IsNegative() {
		return ierr.NewError("invoice amounts cannot be negative").
			WithHint("Invoice amounts cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if !i.Total.Equal(i.Subtotal.Add(i.Tax)) {
		return ierr.NewError("invoice total must equal subtotal plus tax").
			WithHint("Invoice total does not add up").
			WithReportableDetails(map[string]any{
				"subtotal": i.Subtotal.String(),
				"tax":      i.Tax.String(),
				"total":    i.Total.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if !i.PeriodEnd.After(i.PeriodStart) {
		return ierr.NewError("invoice period end must be after start").
			WithHint("Invalid invoice period").
			Mark(ierr.ErrValidation)
	}

	lineTotal := decimal.Zero
	for _, li := range i.LineItems {
		lineTotal = lineTotal.Add(li.Amount)
	}
	if len(i.LineItems) > 0 && !lineTotal.Equal(i.Subtotal) {
		return ierr.NewError("line items do not add up to subtotal").
			WithHint("Invoice line items do not add up").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Chargeable reports whether a payment may be attempted on the invoice
func (i *Invoice) Chargeable() bool {
	return !i.PaymentStatus.IsFinal()
}

// RetryDue reports whether an automatic retry may run at now
func (i *Invoice) RetryDue(now time.Time, maxAttempts int) bool {
	return i.PaymentStatus == types.PaymentStatusFailed &&
		i.NextRetryAt != nil && !i.NextRetryAt.After(now) &&
		i.PaymentAttemptCount < maxAttempts
}

// PaymentAttempt is one charge attempt. Attempts are append-only.
type PaymentAttempt struct {
	ID                string                `db:"id" json:"id"`
	InvoiceID         string                `db:"invoice_id" json:"invoice_id"`
	AttemptNumber     int                   `db:"attempt_number" json:"attempt_number"`
	Provider          types.PaymentProvider `db:"provider" json:"provider"`
	AttemptedAt       time.Time             `db:"attempted_at" json:"attempted_at"`
	PaymentStatus     types.PaymentStatus   `db:"payment_status" json:"payment_status"`
	ResponseCode      *string               `db:"response_code" json:"response_code,omitempty"`
	ErrorMessage      *string               `db:"error_message" json:"error_message,omitempty"`
	ProviderReference *string               `db:"provider_reference" json:"provider_reference,omitempty"`
	Transient         bool                  `db:"transient" json:"transient"`

	types.BaseModel
}
