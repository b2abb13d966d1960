package types

import (
	ierr "github.com/flexprice/billing/internal/errors"
)

// PaymentStatus is the payment state of an invoice and the outcome of a
// single payment attempt
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusProcessing     PaymentStatus = "processing"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusCanceled       PaymentStatus = "canceled"
)

func (s PaymentStatus) Validate() error {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded,
		PaymentStatusFailed, PaymentStatusRequiresAction, PaymentStatusCanceled:
		return nil
	}
	return ierr.NewError("invalid payment status").
		WithHintf("Unknown payment status %q", s).
		Mark(ierr.ErrValidation)
}

// IsFinal reports whether the invoice can no longer be charged
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCanceled
}

// InvoiceLineItemType distinguishes the recurring plan charge from usage overage
type InvoiceLineItemType string

const (
	InvoiceLineItemTypePlan    InvoiceLineItemType = "plan"
	InvoiceLineItemTypeOverage InvoiceLineItemType = "overage"
)

// PaymentProvider names a registered payment provider
type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderIyzico PaymentProvider = "iyzico"
	PaymentProviderMock   PaymentProvider = "mock"
)

func (p PaymentProvider) String() string {
	return string(p)
}

// OveragePolicy decides what happens to usage beyond an allotment that does
// not allow overage
type OveragePolicy string

const (
	// OveragePolicyCap records the usage but never bills beyond the allotment
	OveragePolicyCap OveragePolicy = "cap"
	// OveragePolicyBlock rejects the usage
	OveragePolicyBlock OveragePolicy = "block"
)
