package service

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/subscription"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/retry"
	"github.com/flexprice/billing/internal/types"
	"github.com/samber/lo"
)

// subscriptionState owns the renewal state machine. Every method expects to
// run inside the caller's transaction and writes the change log and outbox
// entries together with the state it changes.
type subscriptionState struct {
	ServiceParams
	policy *retry.Policy
}

func newSubscriptionState(params ServiceParams) *subscriptionState {
	return &subscriptionState{
		ServiceParams: params,
		policy:        retry.NewPolicy(params.Config.Renewal.Backoff),
	}
}

// recordCharge appends the attempt, moves the invoice to the outcome of the
// charge and, when the invoice is the one the subscription is waiting on,
// moves the subscription too
func (s *subscriptionState) recordCharge(
	ctx context.Context,
	sub *subscription.Subscription,
	inv *invoice.Invoice,
	attemptNumber int,
	result *payment.Result,
	now time.Time,
) (*invoice.PaymentAttempt, error) {
	attempt := &invoice.PaymentAttempt{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_ATTEMPT),
		InvoiceID:         inv.ID,
		AttemptNumber:     attemptNumber,
		Provider:          result.Provider,
		AttemptedAt:       now,
		PaymentStatus:     result.Status,
		ResponseCode:      lo.EmptyableToPtr(result.ResponseCode),
		ErrorMessage:      lo.EmptyableToPtr(result.ErrorMessage),
		ProviderReference: lo.EmptyableToPtr(result.Reference),
		Transient:         result.Transient,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
	if err := s.InvoiceRepo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	maxAttempts := s.Config.Renewal.MaxAttempts
	inv.ProviderName = lo.ToPtr(result.Provider)
	if result.Reference != "" {
		inv.ProviderReference = lo.ToPtr(result.Reference)
	}

	var eventType string
	switch {
	case result.Succeeded():
		inv.PaymentStatus = types.PaymentStatusSucceeded
		inv.PaidAt = lo.ToPtr(now)
		inv.NextRetryAt = nil
		inv.RequiresAction = false
		inv.LastErrorCode = nil
		inv.LastErrorMessage = nil
		eventType = types.EventInvoicePaid
	case result.RequiresAction():
		inv.PaymentStatus = types.PaymentStatusRequiresAction
		inv.RequiresAction = true
		inv.NextRetryAt = nil
		eventType = types.EventInvoicePaymentRequiresAction
	default:
		inv.PaymentStatus = types.PaymentStatusFailed
		inv.PaymentAttemptCount++
		inv.FailedAt = lo.ToPtr(now)
		inv.RequiresAction = false
		inv.LastErrorCode = lo.EmptyableToPtr(result.ErrorCode)
		inv.LastErrorMessage = lo.EmptyableToPtr(result.ErrorMessage)
		inv.NextRetryAt = nil
		if inv.PaymentAttemptCount < maxAttempts {
			inv.NextRetryAt = lo.ToPtr(s.policy.NextRetryAt(now, inv.PaymentAttemptCount))
		}
		eventType = types.EventInvoicePaymentFailed
	}
	inv.Touch(ctx, now)

	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	if sub != nil && sub.IsCurrentInvoice(inv.ID) && sub.SubscriptionStatus.IsLive() {
		if err := s.applyOutcome(ctx, sub, inv, result, now); err != nil {
			return nil, err
		}
	}

	// subscription events first so consumers see the renewal before the payment
	if err := s.EventPublisher.Publish(ctx, inv.TenantID, eventType, outbox.NewInvoiceEventPayload(inv)); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *subscriptionState) applyOutcome(
	ctx context.Context,
	sub *subscription.Subscription,
	inv *invoice.Invoice,
	result *payment.Result,
	now time.Time,
) error {
	switch {
	case result.Succeeded():
		return s.renew(ctx, sub, inv, now)
	case result.RequiresAction():
		// waits for the out-of-band completion; not counted as a failure
		sub.SubscriptionStatus = types.SubscriptionStatusPastDue
		sub.LeaseUntil = nil
		sub.Touch(ctx, now)
		return s.SubRepo.Update(ctx, sub)
	}

	previous := sub.SubscriptionStatus
	sub.RenewalAttemptCount = inv.PaymentAttemptCount

	if inv.PaymentAttemptCount >= s.Config.Renewal.MaxAttempts {
		if err := s.publishSubscription(ctx, sub, types.EventSubscriptionRenewalFailed, previous); err != nil {
			return err
		}
		return s.cancel(ctx, sub, types.CancellationReasonPaymentFailed, inv, now,
			"renewal payment failed after the maximum number of attempts")
	}

	sub.SubscriptionStatus = types.SubscriptionStatusPastDue
	sub.LeaseUntil = nil
	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	if err := s.recordChange(ctx, sub, types.SubscriptionChangeRenewalFailed, previous, inv,
		lo.FromPtr(inv.LastErrorMessage)); err != nil {
		return err
	}
	return s.publishSubscription(ctx, sub, types.EventSubscriptionRenewalFailed, previous)
}

// renew advances the subscription to the period the paid invoice covers.
// Usage counters are left alone: the invoice closed the windows it billed
// when it was generated, and usage recorded since belongs to the new period.
func (s *subscriptionState) renew(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, now time.Time) error {
	previous := sub.SubscriptionStatus

	sub.CurrentPeriodStart = inv.PeriodStart
	sub.CurrentPeriodEnd = inv.PeriodEnd
	sub.RenewAt = lo.ToPtr(inv.PeriodEnd)
	sub.RenewalAttemptCount = 0
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.LeaseUntil = nil
	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	if err := s.recordChange(ctx, sub, types.SubscriptionChangeRenewed, previous, inv, ""); err != nil {
		return err
	}
	return s.publishSubscription(ctx, sub, types.EventSubscriptionRenewed, previous)
}

func (s *subscriptionState) cancel(
	ctx context.Context,
	sub *subscription.Subscription,
	reason types.CancellationReason,
	inv *invoice.Invoice,
	now time.Time,
	description string,
) error {
	if sub.SubscriptionStatus.IsTerminal() {
		return ierr.NewErrorf("subscription %s is already %s", sub.ID, sub.SubscriptionStatus).
			WithHintf("Subscription is already %s", sub.SubscriptionStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	previous := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusCanceled
	sub.CancellationReason = lo.ToPtr(reason)
	sub.CanceledAt = lo.ToPtr(now)
	sub.RenewAt = nil
	sub.LeaseUntil = nil
	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	if err := s.recordChange(ctx, sub, types.SubscriptionChangeCancelled, previous, inv, description); err != nil {
		return err
	}

	if reason == types.CancellationReasonPaymentFailed {
		s.Logger.Warnw("subscription canceled for non-payment",
			"subscription_id", sub.ID,
			"tenant_id", sub.TenantID,
			"attempts", sub.RenewalAttemptCount,
		)
		s.Sentry.CaptureWithTags(ctx,
			ierr.NewErrorf("subscription %s canceled after %d failed renewal attempts", sub.ID, sub.RenewalAttemptCount).
				Mark(ierr.ErrPaymentFailed),
			map[string]string{"tenant_id": sub.TenantID, "subscription_id": sub.ID})
	}
	return s.publishSubscription(ctx, sub, types.EventSubscriptionCanceled, previous)
}

// expire ends a subscription whose fixed end date has been reached
func (s *subscriptionState) expire(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	previous := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusExpired
	sub.RenewAt = nil
	sub.LeaseUntil = nil
	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	if err := s.recordChange(ctx, sub, types.SubscriptionChangeExpired, previous, nil, "end date reached"); err != nil {
		return err
	}
	return s.publishSubscription(ctx, sub, types.EventSubscriptionExpired, previous)
}

func (s *subscriptionState) recordChange(
	ctx context.Context,
	sub *subscription.Subscription,
	changeType types.SubscriptionChangeType,
	from types.SubscriptionStatus,
	inv *invoice.Invoice,
	description string,
) error {
	entry := &subscription.ChangeLog{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_CHANGE_LOG),
		SubscriptionID: sub.ID,
		ChangeType:     changeType,
		FromStatus:     from,
		ToStatus:       sub.SubscriptionStatus,
		PeriodStart:    lo.ToPtr(sub.CurrentPeriodStart),
		PeriodEnd:      lo.ToPtr(sub.CurrentPeriodEnd),
		Description:    description,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if inv != nil {
		entry.InvoiceID = lo.ToPtr(inv.ID)
		entry.PeriodStart = lo.ToPtr(inv.PeriodStart)
		entry.PeriodEnd = lo.ToPtr(inv.PeriodEnd)
	}
	entry.TenantID = sub.TenantID
	entry.CreatedAt = s.Clock.Now()
	return s.ChangeLogRepo.Create(ctx, entry)
}

func (s *subscriptionState) publishSubscription(
	ctx context.Context,
	sub *subscription.Subscription,
	eventType string,
	previous types.SubscriptionStatus,
) error {
	return s.EventPublisher.Publish(ctx, sub.TenantID, eventType, outbox.NewSubscriptionEventPayload(sub, previous))
}
