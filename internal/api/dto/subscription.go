package dto

import (
	"github.com/flexprice/billing/internal/domain/subscription"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
)

type SubscriptionResponse struct {
	*subscription.Subscription
}

type CancelSubscriptionRequest struct {
	Reason types.CancellationReason `json:"reason"`
}

func (r *CancelSubscriptionRequest) Validate() error {
	if r.Reason == "" {
		r.Reason = types.CancellationReasonRequested
	}
	switch r.Reason {
	case types.CancellationReasonRequested,
		types.CancellationReasonPaymentFailed,
		types.CancellationReasonPaymentCanceled:
		return nil
	}
	return ierr.NewErrorf("invalid cancellation reason %q", r.Reason).
		WithHint("Reason must be requested, payment_failed or payment_canceled").
		Mark(ierr.ErrValidation)
}

type ListSubscriptionChangesResponse struct {
	Items []*subscription.ChangeLog `json:"items"`
}
