package types

import (
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the billing state of a subscription.
//
//	trialing/active -> renewing -> active | past_due
//	past_due -> renewing -> active | past_due | canceled
//	any live state -> canceled (manual) | expired (end date reached)
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusRenewing SubscriptionStatus = "renewing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// IsLive reports whether the subscription still grants access and can renew
func (s SubscriptionStatus) IsLive() bool {
	return lo.Contains([]SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusRenewing,
		SubscriptionStatusPastDue,
	}, s)
}

// IsTerminal reports whether no further transitions are possible
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

func (s SubscriptionStatus) Validate() error {
	if s.IsLive() || s.IsTerminal() {
		return nil
	}
	return ierr.NewError("invalid subscription status").
		WithHintf("Unknown subscription status %q", s).
		Mark(ierr.ErrValidation)
}

// RenewalPolicy controls what the renewal scheduler does at period end
type RenewalPolicy string

const (
	// RenewalPolicyNone never renews; the subscription ends at EndAt
	RenewalPolicyNone RenewalPolicy = "none"
	// RenewalPolicyManual issues the renewal invoice but waits for a manual payment
	RenewalPolicyManual RenewalPolicy = "manual"
	// RenewalPolicyAuto issues the invoice and charges the stored payment method
	RenewalPolicyAuto RenewalPolicy = "auto"
)

func (p RenewalPolicy) Validate() error {
	switch p {
	case RenewalPolicyNone, RenewalPolicyManual, RenewalPolicyAuto:
		return nil
	}
	return ierr.NewError("invalid renewal policy").
		WithHintf("Unknown renewal policy %q", p).
		Mark(ierr.ErrValidation)
}

type CancellationReason string

const (
	CancellationReasonPaymentFailed   CancellationReason = "payment_failed"
	CancellationReasonRequested       CancellationReason = "requested"
	CancellationReasonPaymentCanceled CancellationReason = "payment_canceled"
)

// SubscriptionChangeType classifies an entry in the subscription change log
type SubscriptionChangeType string

const (
	SubscriptionChangeCreated          SubscriptionChangeType = "created"
	SubscriptionChangeRenewed          SubscriptionChangeType = "renewed"
	SubscriptionChangeRenewalFailed    SubscriptionChangeType = "renewal_failed"
	SubscriptionChangePlanChanged      SubscriptionChangeType = "plan_changed"
	SubscriptionChangeCancelled        SubscriptionChangeType = "cancelled"
	SubscriptionChangeReactivated      SubscriptionChangeType = "reactivated"
	SubscriptionChangePriceUpdated     SubscriptionChangeType = "price_updated"
	SubscriptionChangeManualAdjustment SubscriptionChangeType = "manual_adjustment"
	SubscriptionChangeExpired          SubscriptionChangeType = "expired"
)
