package invoice

import (
	"context"

	"github.com/flexprice/billing/internal/types"
)

// Repository persists invoices, their line items and payment attempts
type Repository interface {
	// Create inserts the invoice together with its line items. A second
	// invoice with the same IdempotencyKey fails with ErrAlreadyExists.
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Invoice, error)
	// Update writes inv if its Version still matches and bumps Version
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)
	Count(ctx context.Context, filter *types.InvoiceFilter) (int, error)

	CreateAttempt(ctx context.Context, attempt *PaymentAttempt) error
	ListAttempts(ctx context.Context, invoiceID string) ([]*PaymentAttempt, error)
}
