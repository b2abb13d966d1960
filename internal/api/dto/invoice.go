package dto

import (
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/validator"
)

type InvoiceResponse struct {
	*invoice.Invoice
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	if inv == nil {
		return nil
	}
	return &InvoiceResponse{Invoice: inv}
}

type ListInvoicesResponse struct {
	Items      []*InvoiceResponse  `json:"items"`
	Pagination *PaginationResponse `json:"pagination"`
}

type ListPaymentAttemptsResponse struct {
	Items []*invoice.PaymentAttempt `json:"items"`
}

// RetryPaymentRequest asks for an immediate charge. Force skips the retry
// schedule but never re-charges a paid or canceled invoice.
type RetryPaymentRequest struct {
	Force bool `json:"force"`
}

type CancelPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (r *CancelPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}
