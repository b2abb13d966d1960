package subscription

import (
	"time"

	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription is a user's recurring entitlement to a plan
type Subscription struct {
	ID       string `db:"id" json:"id"`
	UserID   string `db:"user_id" json:"user_id"`
	PlanID   string `db:"plan_id" json:"plan_id"`
	Currency string `db:"currency" json:"currency"`

	// UnitPrice is the recurring amount billed for the last generated period
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	// PricePinned keeps UnitPrice across renewals instead of reading the
	// plan's current price
	PricePinned bool `db:"price_pinned" json:"price_pinned"`

	BillingPeriod      types.BillingPeriod `db:"billing_period" json:"billing_period"`
	BillingPeriodCount int                 `db:"billing_period_count" json:"billing_period_count"`
	// BillingAnchor fixes the day of month used for every period end
	BillingAnchor time.Time `db:"billing_anchor" json:"billing_anchor"`

	StartAt            time.Time  `db:"start_at" json:"start_at"`
	CurrentPeriodStart time.Time  `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `db:"current_period_end" json:"current_period_end"`
	TrialEndsAt        *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	EndAt              *time.Time `db:"end_at" json:"end_at,omitempty"`
	// RenewAt mirrors CurrentPeriodEnd while the subscription can renew and
	// is nil once it cannot
	RenewAt *time.Time `db:"renew_at" json:"renew_at,omitempty"`

	RenewalPolicy       types.RenewalPolicy `db:"renewal_policy" json:"renewal_policy"`
	RenewalAttemptCount int                 `db:"renewal_attempt_count" json:"renewal_attempt_count"`
	LastInvoiceID       *string             `db:"last_invoice_id" json:"last_invoice_id,omitempty"`

	SubscriptionStatus types.SubscriptionStatus  `db:"subscription_status" json:"subscription_status"`
	CancellationReason *types.CancellationReason `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CanceledAt         *time.Time                `db:"canceled_at" json:"canceled_at,omitempty"`

	PaymentProvider     *types.PaymentProvider `db:"payment_provider" json:"payment_provider,omitempty"`
	ProviderCustomerRef *string                `db:"provider_customer_ref" json:"provider_customer_ref,omitempty"`
	PaymentMethodRef    *string                `db:"payment_method_ref" json:"payment_method_ref,omitempty"`

	// Version is incremented on every write; updates carry the version they
	// read and fail with ErrVersionConflict if it moved
	Version int64 `db:"version" json:"version"`
	// LeaseUntil is set while a renewal worker owns the subscription
	LeaseUntil *time.Time `db:"lease_until" json:"-"`

	types.BaseModel
}

// Validate checks the invariants every persisted subscription must hold
func (s *Subscription) Validate() error {
	if s.UserID == "" || s.PlanID == "" {
		return ierr.NewError("subscription requires user and plan").
			WithHint("User and plan are required").
			Mark(ierr.ErrValidation)
	}
	if err := s.BillingPeriod.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid billing period").
			Mark(ierr.ErrValidation)
	}
	if s.BillingPeriodCount <= 0 {
		return ierr.NewError("billing period count must be positive").
			WithHint("Billing period count must be at least 1").
			Mark(ierr.ErrValidation)
	}
	if err := s.RenewalPolicy.Validate(); err != nil {
		return err
	}
	if err := s.SubscriptionStatus.Validate(); err != nil {
		return err
	}
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return ierr.NewError("current period end must be after start").
			WithHint("Invalid billing period bounds").
			WithReportableDetails(map[string]any{
				"current_period_start": s.CurrentPeriodStart,
				"current_period_end":   s.CurrentPeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.UnitPrice.IsNegative() {
		return ierr.NewError("unit price cannot be negative").
			WithHint("Unit price cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CanRenew reports whether the renewal scheduler may ever pick the
// subscription up again
func (s *Subscription) CanRenew() bool {
	return s.RenewalPolicy != types.RenewalPolicyNone && s.SubscriptionStatus.IsLive()
}

// ReachedEnd reports whether the fixed end date falls on or before the end
// of the current period, so no further period should be billed
func (s *Subscription) ReachedEnd() bool {
	return s.EndAt != nil && !s.EndAt.After(s.CurrentPeriodEnd)
}

// IsCurrentInvoice reports whether invoiceID is the renewal invoice the
// subscription is waiting on
func (s *Subscription) IsCurrentInvoice(invoiceID string) bool {
	return s.LastInvoiceID != nil && *s.LastInvoiceID == invoiceID
}

// ChangeLog is an append-only record of a subscription state change
type ChangeLog struct {
	ID             string                       `db:"id" json:"id"`
	SubscriptionID string                       `db:"subscription_id" json:"subscription_id"`
	ChangeType     types.SubscriptionChangeType `db:"change_type" json:"change_type"`
	FromStatus     types.SubscriptionStatus     `db:"from_status" json:"from_status"`
	ToStatus       types.SubscriptionStatus     `db:"to_status" json:"to_status"`
	PeriodStart    *time.Time                   `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd      *time.Time                   `db:"period_end" json:"period_end,omitempty"`
	InvoiceID      *string                      `db:"invoice_id" json:"invoice_id,omitempty"`
	Description    string                       `db:"description" json:"description"`

	types.BaseModel
}

// Item is the per-feature usage counter of a subscription
type Item struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`
	FeatureID      string `db:"feature_id" json:"feature_id"`
	// Allotted is nil for unlimited features
	Allotted      *decimal.Decimal    `db:"allotted" json:"allotted,omitempty"`
	Used          decimal.Decimal     `db:"used" json:"used"`
	AllowOverage  bool                `db:"allow_overage" json:"allow_overage"`
	OverusePrice  *decimal.Decimal    `db:"overuse_price" json:"overuse_price,omitempty"`
	ResetInterval types.ResetInterval `db:"reset_interval" json:"reset_interval"`
	ResetsAt      *time.Time          `db:"resets_at" json:"resets_at,omitempty"`
	LastResetAt   *time.Time          `db:"last_reset_at" json:"last_reset_at,omitempty"`
	// BilledOverage is the part of the current window's overage already put
	// on an invoice
	BilledOverage decimal.Decimal `db:"billed_overage" json:"billed_overage"`
	// CarriedOverage is overage from closed windows that no invoice has
	// billed yet
	CarriedOverage decimal.Decimal `db:"carried_overage" json:"carried_overage"`

	types.BaseModel
}

// Overage returns max(0, used - allotted); unlimited items never overrun
func (i *Item) Overage() decimal.Decimal {
	if i.Allotted == nil {
		return decimal.Zero
	}
	over := i.Used.Sub(*i.Allotted)
	if over.IsNegative() {
		return decimal.Zero
	}
	return over
}

// Remaining returns the allotment left, or nil for unlimited items
func (i *Item) Remaining() *decimal.Decimal {
	if i.Allotted == nil {
		return nil
	}
	left := decimal.Max(decimal.Zero, i.Allotted.Sub(i.Used))
	return &left
}

// ResetDue reports whether the counter has to be zeroed before use at now
func (i *Item) ResetDue(now time.Time) bool {
	return i.ResetsAt != nil && !i.ResetsAt.After(now)
}

// ClosesAt reports whether the counter window ends at or before boundary, so
// an invoice cut at boundary has to close it
func (i *Item) ClosesAt(boundary time.Time) bool {
	if i.ResetInterval == types.RESET_INTERVAL_BILLING_PERIOD {
		return true
	}
	return i.ResetDue(boundary)
}

// Billable returns the overage quantity no invoice has charged yet: the
// carried overage of closed windows plus the unbilled part of the current one
func (i *Item) Billable() decimal.Decimal {
	if !i.AllowOverage || i.OverusePrice == nil {
		return decimal.Zero
	}
	return i.CarriedOverage.Add(i.unbilledOverage())
}

// MarkBilled records that everything Billable returned is on an invoice
func (i *Item) MarkBilled() {
	i.BilledOverage = i.Overage()
	i.CarriedOverage = decimal.Zero
}

func (i *Item) unbilledOverage() decimal.Decimal {
	return decimal.Max(decimal.Zero, i.Overage().Sub(i.BilledOverage))
}

// Reset closes the current window and zeroes the counter. Overage of the
// closed window that was not billed yet is carried to the next invoice. The
// next reset follows the previous schedule, skipping windows already past.
func (i *Item) Reset(now, anchor time.Time) {
	if i.AllowOverage && i.OverusePrice != nil {
		i.CarriedOverage = i.CarriedOverage.Add(i.unbilledOverage())
	}
	i.Used = decimal.Zero
	i.BilledOverage = decimal.Zero
	i.LastResetAt = &now

	from := now
	if i.ResetsAt != nil {
		from = *i.ResetsAt
	}
	next := i.ResetInterval.NextResetAt(from, anchor)
	for next != nil && !next.After(now) {
		next = i.ResetInterval.NextResetAt(*next, anchor)
	}
	i.ResetsAt = next
}
