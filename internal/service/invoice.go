package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/billing/internal/api/dto"
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/subscription"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/idempotency"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type InvoiceService interface {
	// GenerateInvoice returns the invoice of sub for the period, creating it
	// on first call. Later calls for the same period return the same invoice.
	GenerateInvoice(ctx context.Context, sub *subscription.Subscription, periodStart, periodEnd time.Time, unitPrice decimal.Decimal) (*invoice.Invoice, error)
	// Charge attempts payment of inv and records the outcome. The error is
	// reserved for configuration and persistence problems; a declined card
	// is a failed Result.
	Charge(ctx context.Context, inv *invoice.Invoice, sub *subscription.Subscription) (*payment.Result, error)
	RetryPayment(ctx context.Context, id string, req dto.RetryPaymentRequest) (*dto.InvoiceResponse, error)
	CancelPayment(ctx context.Context, id string, req dto.CancelPaymentRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
	ListAttempts(ctx context.Context, id string) (*dto.ListPaymentAttemptsResponse, error)
}

type invoiceService struct {
	ServiceParams
	state    *subscriptionState
	idempGen *idempotency.Generator
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return newInvoiceService(params)
}

func newInvoiceService(params ServiceParams) *invoiceService {
	return &invoiceService{
		ServiceParams: params,
		state:         newSubscriptionState(params),
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *invoiceService) invoiceKey(sub *subscription.Subscription, periodStart, periodEnd time.Time) string {
	return s.idempGen.GenerateKey(idempotency.ScopeSubscriptionInvoice, map[string]interface{}{
		"tenant_id":       sub.TenantID,
		"subscription_id": sub.ID,
		"period_start":    periodStart.UTC().Format(time.RFC3339),
		"period_end":      periodEnd.UTC().Format(time.RFC3339),
	})
}

func (s *invoiceService) GenerateInvoice(
	ctx context.Context,
	sub *subscription.Subscription,
	periodStart, periodEnd time.Time,
	unitPrice decimal.Decimal,
) (*invoice.Invoice, error) {
	key := s.invoiceKey(sub, periodStart, periodEnd)

	existing, err := s.InvoiceRepo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	lineItems, items, err := s.buildLineItems(ctx, sub, periodStart, periodEnd, unitPrice)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, li := range lineItems {
		subtotal = subtotal.Add(li.Amount)
	}
	tax := subtotal.Mul(decimal.NewFromFloat(s.Config.Renewal.TaxRate)).Round(2)

	now := s.Clock.Now()
	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		InvoiceNumber:  types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		IdempotencyKey: key,
		Currency:       sub.Currency,
		Subtotal:       subtotal,
		Tax:            tax,
		Total:          subtotal.Add(tax),
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		DueDate:        periodStart,
		PaymentStatus:  types.PaymentStatusPending,
		ProviderName:   sub.PaymentProvider,
		LineItems:      lineItems,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	inv.TenantID = sub.TenantID
	inv.CreatedAt = now
	inv.UpdatedAt = now
	for _, li := range lineItems {
		li.InvoiceID = inv.ID
		li.BaseModel = inv.BaseModel
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		if ierr.IsAlreadyExists(err) {
			// lost the race against another worker for the same period
			return s.InvoiceRepo.GetByIdempotencyKey(ctx, key)
		}
		return nil, err
	}

	for _, item := range items {
		item.Touch(ctx, now)
		if err := s.ItemRepo.Update(ctx, item); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("created renewal invoice",
		"invoice_id", inv.ID,
		"subscription_id", sub.ID,
		"period_start", periodStart,
		"period_end", periodEnd,
		"total", inv.Total.String(),
		"line_items", len(lineItems),
	)

	if err := s.EventPublisher.Publish(ctx, inv.TenantID, types.EventInvoiceCreated, outbox.NewInvoiceEventPayload(inv)); err != nil {
		return nil, err
	}
	return inv, nil
}

// buildLineItems returns the plan line followed by one overage line per
// counter with unbilled overage it may be charged for. Counter windows that
// end at periodStart are closed here, so usage recorded after the invoice is
// cut counts toward the new period. The returned items carry the new counter
// state and must be saved with the invoice.
func (s *invoiceService) buildLineItems(
	ctx context.Context,
	sub *subscription.Subscription,
	periodStart, periodEnd time.Time,
	unitPrice decimal.Decimal,
) ([]*invoice.LineItem, []*subscription.Item, error) {
	planName := sub.PlanID
	if p, err := s.PlanRepo.Get(ctx, sub.PlanID); err == nil && p.Name != "" {
		planName = p.Name
	}

	description := fmt.Sprintf("%s (%s - %s)", planName,
		periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly))

	lines := []*invoice.LineItem{{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
		LineType:    types.InvoiceLineItemTypePlan,
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		UnitAmount:  unitPrice,
		Amount:      unitPrice,
		Currency:    sub.Currency,
	}}

	items, err := s.ItemRepo.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, nil, err
	}

	now := s.Clock.Now()
	for _, item := range items {
		if item.ClosesAt(periodStart) {
			item.Reset(now, sub.BillingAnchor)
		}

		overage := item.Billable()
		item.MarkBilled()
		if !overage.IsPositive() {
			continue
		}
		lines = append(lines, &invoice.LineItem{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
			LineType:    types.InvoiceLineItemTypeOverage,
			FeatureID:   lo.ToPtr(item.FeatureID),
			Description: fmt.Sprintf("%s overage", item.FeatureID),
			Quantity:    overage,
			UnitAmount:  *item.OverusePrice,
			Amount:      overage.Mul(*item.OverusePrice).Round(2),
			Currency:    sub.Currency,
		})
	}
	return lines, items, nil
}

func (s *invoiceService) Charge(ctx context.Context, inv *invoice.Invoice, sub *subscription.Subscription) (*payment.Result, error) {
	if !inv.Chargeable() {
		return nil, ierr.NewErrorf("invoice %s is %s", inv.ID, inv.PaymentStatus).
			WithHintf("Invoice is already %s", inv.PaymentStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	preferred := inv.ProviderName
	if preferred == nil && sub != nil {
		preferred = sub.PaymentProvider
	}

	provider, err := s.PaymentRouter.Resolve(ctx, inv.TenantID, preferred)
	if err != nil {
		if ierr.IsConfiguration(err) {
			if markErr := s.DB.WithTx(ctx, func(ctx context.Context) error {
				return s.markConfigurationError(ctx, inv, err)
			}); markErr != nil {
				s.Logger.Errorw("failed to record configuration error on invoice",
					"invoice_id", inv.ID,
					"error", markErr,
				)
			}
		}
		return nil, err
	}
	return s.chargeWith(ctx, provider, inv, sub)
}

// chargeWith calls the provider outside any transaction, then records the
// attempt and its consequences in one
func (s *invoiceService) chargeWith(
	ctx context.Context,
	provider payment.Provider,
	inv *invoice.Invoice,
	sub *subscription.Subscription,
) (*payment.Result, error) {
	attempts, err := s.InvoiceRepo.ListAttempts(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	attemptNumber := len(attempts) + 1

	req := &payment.ChargeRequest{
		TenantID:       inv.TenantID,
		InvoiceID:      inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		SubscriptionID: inv.SubscriptionID,
		UserID:         inv.UserID,
		Amount:         inv.Total,
		Currency:       inv.Currency,
		IdempotencyKey: idempotency.ChargeKey(inv.ID, attemptNumber),
		Attempt:        attemptNumber,
	}
	if sub != nil {
		req.CustomerRef = lo.FromPtr(sub.ProviderCustomerRef)
		req.PaymentMethodRef = lo.FromPtr(sub.PaymentMethodRef)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.Config.Renewal.ChargeTimeout)
	result, err := s.PaymentRouter.ChargeWith(chargeCtx, provider, req)
	cancel()
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("payment attempt finished",
		"invoice_id", inv.ID,
		"attempt", attemptNumber,
		"provider", result.Provider,
		"status", result.Status,
		"error_code", result.ErrorCode,
		"transient", result.Transient,
	)

	now := s.Clock.Now()
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.state.recordCharge(ctx, sub, inv, attemptNumber, result, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// markConfigurationError leaves the invoice chargeable and consumes no
// attempt; the problem is for the operator to fix
func (s *invoiceService) markConfigurationError(ctx context.Context, inv *invoice.Invoice, cause error) error {
	s.Logger.Errorw("cannot charge invoice, payment configuration is incomplete",
		"invoice_id", inv.ID,
		"tenant_id", inv.TenantID,
		"error", cause,
	)
	s.Sentry.CaptureWithTags(ctx, cause, map[string]string{
		"tenant_id":  inv.TenantID,
		"invoice_id": inv.ID,
	})

	inv.LastErrorCode = lo.ToPtr(ierr.ErrCodeConfiguration)
	inv.LastErrorMessage = lo.ToPtr(cause.Error())
	inv.Touch(ctx, s.Clock.Now())
	return s.InvoiceRepo.Update(ctx, inv)
}

func (s *invoiceService) RetryPayment(ctx context.Context, id string, req dto.RetryPaymentRequest) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	switch inv.PaymentStatus {
	case types.PaymentStatusSucceeded, types.PaymentStatusCanceled:
		return nil, ierr.NewErrorf("invoice %s is %s", inv.ID, inv.PaymentStatus).
			WithHintf("Invoice is already %s and cannot be charged", inv.PaymentStatus).
			Mark(ierr.ErrInvalidOperation)
	case types.PaymentStatusFailed:
		if !req.Force && !inv.RetryDue(now, s.Config.Renewal.MaxAttempts) {
			hint := "Invoice has no retries left; use force to charge it anyway"
			if inv.NextRetryAt != nil {
				hint = fmt.Sprintf("Next retry is scheduled at %s; use force to charge now",
					inv.NextRetryAt.Format(time.RFC3339))
			}
			return nil, ierr.NewErrorf("invoice %s is not due for a retry", inv.ID).
				WithHint(hint).
				WithReportableDetails(map[string]any{
					"payment_attempt_count": inv.PaymentAttemptCount,
					"next_retry_at":         inv.NextRetryAt,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
	}

	sub, err := s.SubRepo.Get(ctx, inv.SubscriptionID)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		sub = nil
	}

	result, err := s.Charge(ctx, inv, sub)
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		return nil, ierr.NewErrorf("payment of invoice %s failed: %s", inv.ID, result.ErrorMessage).
			WithHintf("Payment failed: %s", result.ErrorMessage).
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"provider":   result.Provider,
				"error_code": result.ErrorCode,
				"transient":  result.Transient,
				"attempts":   inv.PaymentAttemptCount,
			}).
			Mark(ierr.ErrPaymentFailed)
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) CancelPayment(ctx context.Context, id string, req dto.CancelPaymentRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus.IsFinal() {
		return nil, ierr.NewErrorf("invoice %s is %s", inv.ID, inv.PaymentStatus).
			WithHintf("Invoice is already %s", inv.PaymentStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	now := s.Clock.Now()
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		inv.PaymentStatus = types.PaymentStatusCanceled
		inv.NextRetryAt = nil
		inv.RequiresAction = false
		inv.Touch(ctx, now)
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		sub, err := s.SubRepo.Get(ctx, inv.SubscriptionID)
		if err != nil && !ierr.IsNotFound(err) {
			return err
		}
		if sub != nil && sub.IsCurrentInvoice(inv.ID) && lo.Contains([]types.SubscriptionStatus{
			types.SubscriptionStatusPastDue,
			types.SubscriptionStatusRenewing,
		}, sub.SubscriptionStatus) {
			if err := s.state.cancel(ctx, sub, types.CancellationReasonPaymentCanceled, inv, now, req.Reason); err != nil {
				return err
			}
		}

		return s.EventPublisher.Publish(ctx, inv.TenantID, types.EventInvoicePaymentCanceled, outbox.NewInvoiceEventPayload(inv))
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice payment canceled",
		"invoice_id", inv.ID,
		"reason", req.Reason,
	)
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.InvoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListInvoicesResponse{
		Items: lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
			return dto.NewInvoiceResponse(inv)
		}),
		Pagination: dto.NewPaginationResponse(count, filter.QueryFilter),
	}, nil
}

func (s *invoiceService) ListAttempts(ctx context.Context, id string) (*dto.ListPaymentAttemptsResponse, error) {
	// scopes the lookup to the caller's tenant
	if _, err := s.InvoiceRepo.Get(ctx, id); err != nil {
		return nil, err
	}

	attempts, err := s.InvoiceRepo.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ListPaymentAttemptsResponse{Items: attempts}, nil
}
