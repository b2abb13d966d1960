package subscription

import (
	"context"
	"time"
)

// ClaimDueParams selects subscriptions the renewal scheduler should work on
type ClaimDueParams struct {
	Now         time.Time
	LeaseUntil  time.Time
	MaxAttempts int
	Limit       int
}

// Repository persists subscriptions
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// Update writes sub if its Version still matches the stored row and
	// bumps Version. A stale write returns ErrVersionConflict.
	Update(ctx context.Context, sub *Subscription) error
	// GetLiveByUser returns the user's non-terminal subscription
	GetLiveByUser(ctx context.Context, userID string) (*Subscription, error)
	// ClaimDue atomically leases up to Limit due subscriptions across all
	// tenants, ordered by renewal time. Due means renewal policy is not none,
	// no unexpired lease, and either trialing/active with renew_at <= now,
	// past_due with a failed last invoice whose retry is due and attempts
	// below MaxAttempts, or renewing (an interrupted renewal).
	ClaimDue(ctx context.Context, params ClaimDueParams) ([]*Subscription, error)
	// ReleaseLease clears the renewal lease without touching anything else
	ReleaseLease(ctx context.Context, id string) error
}

// ChangeLogRepository appends subscription change log entries
type ChangeLogRepository interface {
	Create(ctx context.Context, log *ChangeLog) error
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*ChangeLog, error)
}

// ItemRepository persists per-feature usage counters
type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	GetByFeature(ctx context.Context, subscriptionID, featureID string) (*Item, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Item, error)
	// ListResetDue returns items across all tenants whose reset time has passed
	ListResetDue(ctx context.Context, now time.Time, limit int) ([]*Item, error)
}
