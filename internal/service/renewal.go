package service

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/billing/internal/api/dto"
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/subscription"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

type RenewalService interface {
	// RunRenewalPass claims every subscription due at now and renews,
	// retries or expires it. Per-subscription failures are counted and
	// logged; the error is reserved for failing to claim.
	RunRenewalPass(ctx context.Context, now time.Time) (*RenewalPassResult, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	ListChanges(ctx context.Context, id string) (*dto.ListSubscriptionChangesResponse, error)
}

// RenewalOutcome is what a renewal pass did with one subscription
type RenewalOutcome string

const (
	RenewalOutcomeRenewed         RenewalOutcome = "renewed"
	RenewalOutcomePastDue         RenewalOutcome = "past_due"
	RenewalOutcomeRequiresAction  RenewalOutcome = "requires_action"
	RenewalOutcomeAwaitingPayment RenewalOutcome = "awaiting_payment"
	RenewalOutcomeCanceled        RenewalOutcome = "canceled"
	RenewalOutcomeExpired         RenewalOutcome = "expired"
	RenewalOutcomeConfiguration   RenewalOutcome = "configuration_error"
	RenewalOutcomeError           RenewalOutcome = "error"
)

type RenewalPassResult struct {
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Claimed    int                    `json:"claimed"`
	Outcomes   map[RenewalOutcome]int `json:"outcomes"`
}

// Count returns how many subscriptions ended the pass with outcome
func (r *RenewalPassResult) Count(outcome RenewalOutcome) int {
	return r.Outcomes[outcome]
}

type renewalService struct {
	ServiceParams
	invoices *invoiceService
	state    *subscriptionState
}

func NewRenewalService(params ServiceParams) RenewalService {
	invoices := newInvoiceService(params)
	return &renewalService{
		ServiceParams: params,
		invoices:      invoices,
		state:         invoices.state,
	}
}

func (s *renewalService) RunRenewalPass(ctx context.Context, now time.Time) (*RenewalPassResult, error) {
	cfg := s.Config.Renewal
	result := &RenewalPassResult{
		StartedAt: now,
		Outcomes:  make(map[RenewalOutcome]int),
	}

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var release []string

	defer func() {
		// leases of subscriptions that were left untouched or were claimed
		// twice in this pass; they become claimable again on the next one
		for _, id := range release {
			if err := s.SubRepo.ReleaseLease(context.WithoutCancel(ctx), id); err != nil {
				s.Logger.Warnw("failed to release renewal lease", "subscription_id", id, "error", err)
			}
		}
	}()

	for ctx.Err() == nil {
		claimed, err := s.SubRepo.ClaimDue(ctx, subscription.ClaimDueParams{
			Now:         now,
			LeaseUntil:  now.Add(cfg.LeaseDuration),
			MaxAttempts: cfg.MaxAttempts,
			Limit:       cfg.BatchSize,
		})
		if err != nil {
			return result, ierr.WithError(err).
				WithHint("Failed to claim subscriptions due for renewal").
				Mark(ierr.ErrDatabase)
		}

		var fresh []*subscription.Subscription
		for _, sub := range claimed {
			if _, ok := seen[sub.ID]; ok {
				release = append(release, sub.ID)
				continue
			}
			seen[sub.ID] = struct{}{}
			fresh = append(fresh, sub)
		}
		result.Claimed += len(fresh)

		p := pool.New().WithMaxGoroutines(cfg.Concurrency)
		for _, sub := range fresh {
			p.Go(func() {
				outcome := s.renewOne(ctx, sub, now)

				mu.Lock()
				defer mu.Unlock()
				result.Outcomes[outcome]++
				if outcome == RenewalOutcomeConfiguration || outcome == RenewalOutcomeError {
					release = append(release, sub.ID)
				}
			})
		}
		p.Wait()

		if len(claimed) < cfg.BatchSize || len(fresh) == 0 {
			break
		}
	}

	result.FinishedAt = s.Clock.Now()
	s.Logger.Infow("renewal pass finished",
		"claimed", result.Claimed,
		"outcomes", result.Outcomes,
		"duration", result.FinishedAt.Sub(now),
	)
	return result, nil
}

// renewOne runs one subscription through the renewal flow:
// read and compute, a short transaction, the charge, a short transaction
func (s *renewalService) renewOne(ctx context.Context, sub *subscription.Subscription, now time.Time) RenewalOutcome {
	ctx = types.WithTenantScope(ctx, sub.TenantID)

	outcome, err := s.renew(ctx, sub, now)
	if err == nil {
		return outcome
	}

	if ierr.IsConfiguration(err) {
		s.Logger.Errorw("renewal blocked by configuration",
			"subscription_id", sub.ID,
			"tenant_id", sub.TenantID,
			"error", err,
		)
		s.Sentry.CaptureWithTags(ctx, err, map[string]string{
			"tenant_id":       sub.TenantID,
			"subscription_id": sub.ID,
		})
		return RenewalOutcomeConfiguration
	}

	if ierr.IsVersionConflict(err) {
		s.Logger.Warnw("subscription changed during renewal, leaving it for the next pass",
			"subscription_id", sub.ID,
			"error", err,
		)
		return RenewalOutcomeError
	}

	s.Logger.Errorw("renewal failed",
		"subscription_id", sub.ID,
		"tenant_id", sub.TenantID,
		"error", err,
	)
	return RenewalOutcomeError
}

func (s *renewalService) renew(ctx context.Context, sub *subscription.Subscription, now time.Time) (RenewalOutcome, error) {
	if sub.ReachedEnd() {
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			return s.state.expire(ctx, sub, now)
		})
		return RenewalOutcomeExpired, err
	}

	var (
		inv        *invoice.Invoice
		price      decimal.Decimal
		periodEnd  time.Time
		err        error
		retryingID = sub.LastInvoiceID
	)

	periodStart := sub.CurrentPeriodEnd
	if sub.SubscriptionStatus == types.SubscriptionStatusPastDue && retryingID != nil {
		// retry of the outstanding invoice
		inv, err = s.InvoiceRepo.Get(ctx, *retryingID)
		if err != nil {
			return RenewalOutcomeError, err
		}
	} else {
		periodEnd, err = types.NextBillingDate(periodStart, sub.BillingAnchor, sub.BillingPeriodCount, sub.BillingPeriod)
		if err != nil {
			return RenewalOutcomeError, err
		}
		price, err = s.renewalPrice(ctx, sub, periodStart)
		if err != nil {
			return RenewalOutcomeConfiguration, err
		}
	}

	var provider payment.Provider
	if sub.RenewalPolicy == types.RenewalPolicyAuto {
		preferred := sub.PaymentProvider
		if inv != nil && inv.ProviderName != nil {
			preferred = inv.ProviderName
		}
		provider, err = s.PaymentRouter.Resolve(ctx, sub.TenantID, preferred)
		if err != nil {
			if inv != nil {
				if markErr := s.DB.WithTx(ctx, func(ctx context.Context) error {
					return s.invoices.markConfigurationError(ctx, inv, err)
				}); markErr != nil {
					s.Logger.Warnw("failed to record configuration error on invoice",
						"invoice_id", inv.ID,
						"error", markErr,
					)
				}
			}
			return RenewalOutcomeConfiguration, err
		}
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if inv == nil {
			generated, err := s.invoices.GenerateInvoice(ctx, sub, periodStart, periodEnd, price)
			if err != nil {
				return err
			}
			inv = generated
			if !sub.PricePinned {
				sub.UnitPrice = price
			}
		}

		sub.SubscriptionStatus = types.SubscriptionStatusRenewing
		sub.LastInvoiceID = &inv.ID
		sub.Touch(ctx, now)
		return s.SubRepo.Update(ctx, sub)
	})
	if err != nil {
		return RenewalOutcomeError, err
	}

	if !inv.Chargeable() {
		return s.settleFinalInvoice(ctx, sub, inv, now)
	}

	if sub.RenewalPolicy == types.RenewalPolicyManual {
		err = s.DB.WithTx(ctx, func(ctx context.Context) error {
			sub.SubscriptionStatus = types.SubscriptionStatusPastDue
			sub.LeaseUntil = nil
			sub.Touch(ctx, now)
			return s.SubRepo.Update(ctx, sub)
		})
		return RenewalOutcomeAwaitingPayment, err
	}

	result, err := s.invoices.chargeWith(ctx, provider, inv, sub)
	if err != nil {
		return RenewalOutcomeError, err
	}

	switch {
	case result.Succeeded():
		return RenewalOutcomeRenewed, nil
	case result.RequiresAction():
		return RenewalOutcomeRequiresAction, nil
	case sub.SubscriptionStatus == types.SubscriptionStatusCanceled:
		return RenewalOutcomeCanceled, nil
	default:
		return RenewalOutcomePastDue, nil
	}
}

// settleFinalInvoice finishes a renewal whose invoice was settled outside
// the pass, e.g. paid through RetryPayment while the subscription was leased
func (s *renewalService) settleFinalInvoice(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, now time.Time) (RenewalOutcome, error) {
	if inv.PaymentStatus == types.PaymentStatusSucceeded {
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			return s.state.renew(ctx, sub, inv, now)
		})
		return RenewalOutcomeRenewed, err
	}

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.state.cancel(ctx, sub, types.CancellationReasonPaymentCanceled, inv, now, "renewal invoice was canceled")
	})
	return RenewalOutcomeCanceled, err
}

// renewalPrice is the pinned price or the plan's price in effect at the
// start of the next period
func (s *renewalService) renewalPrice(ctx context.Context, sub *subscription.Subscription, at time.Time) (decimal.Decimal, error) {
	if sub.PricePinned {
		return sub.UnitPrice, nil
	}

	price, err := s.PlanRepo.GetEffectivePrice(ctx, sub.PlanID, sub.Currency, at)
	if err != nil {
		if ierr.IsNotFound(err) {
			return decimal.Zero, ierr.WithError(err).
				WithHintf("Plan %s has no %s price in effect", sub.PlanID, sub.Currency).
				WithReportableDetails(map[string]any{
					"plan_id":  sub.PlanID,
					"currency": sub.Currency,
					"at":       at,
				}).
				Mark(ierr.ErrConfiguration)
		}
		return decimal.Zero, err
	}
	return price.Amount, nil
}

func (s *renewalService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *renewalService) CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.state.cancel(ctx, sub, req.Reason, nil, s.Clock.Now(), "canceled on request")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription canceled",
		"subscription_id", sub.ID,
		"reason", req.Reason,
	)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *renewalService) ListChanges(ctx context.Context, id string) (*dto.ListSubscriptionChangesResponse, error) {
	if _, err := s.SubRepo.Get(ctx, id); err != nil {
		return nil, err
	}

	changes, err := s.ChangeLogRepo.ListBySubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ListSubscriptionChangesResponse{Items: changes}, nil
}
