package payment

import (
	"context"
	"fmt"

	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

// ChargeRequest asks a provider to collect Amount for one invoice attempt
type ChargeRequest struct {
	TenantID       string
	InvoiceID      string
	InvoiceNumber  string
	SubscriptionID string
	UserID         string

	Amount   decimal.Decimal
	Currency string

	// CustomerRef and PaymentMethodRef identify the stored payment method at
	// the provider
	CustomerRef      string
	PaymentMethodRef string

	// IdempotencyKey is forwarded to the provider so a replayed attempt is
	// not charged twice
	IdempotencyKey string
	Attempt        int
}

// Result is the normalized outcome of a charge
type Result struct {
	// Status is one of succeeded, requires_action or failed
	Status       types.PaymentStatus
	Provider     types.PaymentProvider
	Reference    string
	ResponseCode string
	ErrorCode    string
	ErrorMessage string
	// Transient marks failures worth retrying later (timeouts, 5xx, rate
	// limits). Declines are never transient.
	Transient bool
}

func (r *Result) Succeeded() bool      { return r.Status == types.PaymentStatusSucceeded }
func (r *Result) RequiresAction() bool { return r.Status == types.PaymentStatusRequiresAction }
func (r *Result) Failed() bool         { return r.Status == types.PaymentStatusFailed }

// Provider is a payment gateway integration. Charge returns a Result for
// succeeded and requires_action outcomes and a *ProviderError otherwise.
type Provider interface {
	Name() types.PaymentProvider
	// Available returns an ErrConfiguration error when the provider lacks
	// the credentials it needs
	Available() error
	Charge(ctx context.Context, req *ChargeRequest) (*Result, error)
}

// ProviderError is a failed charge as reported by a provider
type ProviderError struct {
	Provider   types.PaymentProvider
	Code       string
	Message    string
	StatusCode int
	Transient  bool
}

func (e *ProviderError) Error() string {
	kind := "declined"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s payment %s: %s (%s)", e.Provider, kind, e.Message, e.Code)
}

// NewDecline returns a permanent failure
func NewDecline(provider types.PaymentProvider, code, message string) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message}
}

// NewTransient returns a failure that may succeed when retried
func NewTransient(provider types.PaymentProvider, code, message string) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message, Transient: true}
}
