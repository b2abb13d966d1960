package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/subscription"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository. It reads the
// invoice store to evaluate retry eligibility the way the SQL claim joins
// invoices.
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
	invoices *InMemoryInvoiceStore
}

func NewInMemorySubscriptionStore(invoices *InMemoryInvoiceStore) *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
		invoices:      invoices,
	}
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}
	cp := *sub
	return &cp
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	if sub.TenantID == "" {
		sub.TenantID = types.GetTenantID(ctx)
	}
	if sub.Status == "" {
		sub.Status = types.StatusPublished
	}
	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Subscription %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	if !CheckTenantFilter(ctx, sub.TenantID) || sub.Status != types.StatusPublished {
		return nil, ierr.NewErrorf("subscription %s not found", id).
			WithHintf("Subscription %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	var err error
	s.Mutate(func(items map[string]*subscription.Subscription) {
		stored, ok := items[sub.ID]
		if !ok || stored.Version != sub.Version {
			err = ierr.NewErrorf("subscription %s was modified concurrently", sub.ID).
				WithHint("subscription was modified by another request, reload and retry").
				Mark(ierr.ErrVersionConflict)
			return
		}
		sub.Version++
		sub.UpdatedAt = time.Now().UTC()
		items[sub.ID] = copySubscription(sub)
	})
	return err
}

func (s *InMemorySubscriptionStore) GetLiveByUser(ctx context.Context, userID string) (*subscription.Subscription, error) {
	subs, err := s.List(ctx, nil, func(ctx context.Context, sub *subscription.Subscription, _ interface{}) bool {
		return CheckTenantFilter(ctx, sub.TenantID) &&
			sub.Status == types.StatusPublished &&
			sub.UserID == userID &&
			sub.SubscriptionStatus.IsLive()
	}, func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewErrorf("no live subscription for user %s", userID).
			WithHint("User has no live subscription").
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(subs[0]), nil
}

// ClaimDue mirrors the SQL claim: same due rules, same ordering, lease stamped
// atomically under the store lock
func (s *InMemorySubscriptionStore) ClaimDue(ctx context.Context, params subscription.ClaimDueParams) ([]*subscription.Subscription, error) {
	var claimed []*subscription.Subscription
	s.Mutate(func(items map[string]*subscription.Subscription) {
		var due []*subscription.Subscription
		for _, sub := range items {
			if s.isDue(ctx, sub, params) {
				due = append(due, sub)
			}
		}

		sort.SliceStable(due, func(i, j int) bool {
			a, b := due[i].RenewAt, due[j].RenewAt
			switch {
			case a == nil && b == nil:
				return due[i].ID < due[j].ID
			case a == nil:
				return false
			case b == nil:
				return true
			case a.Equal(*b):
				return due[i].ID < due[j].ID
			default:
				return a.Before(*b)
			}
		})

		if params.Limit > 0 && len(due) > params.Limit {
			due = due[:params.Limit]
		}
		for _, sub := range due {
			lease := params.LeaseUntil
			sub.LeaseUntil = &lease
			claimed = append(claimed, copySubscription(sub))
		}
	})
	return claimed, nil
}

func (s *InMemorySubscriptionStore) isDue(ctx context.Context, sub *subscription.Subscription, params subscription.ClaimDueParams) bool {
	if sub.Status != types.StatusPublished || sub.RenewalPolicy == types.RenewalPolicyNone {
		return false
	}
	if sub.LeaseUntil != nil && sub.LeaseUntil.After(params.Now) {
		return false
	}

	switch sub.SubscriptionStatus {
	case types.SubscriptionStatusTrialing, types.SubscriptionStatusActive:
		return sub.RenewAt != nil && !sub.RenewAt.After(params.Now)
	case types.SubscriptionStatusRenewing:
		return true
	case types.SubscriptionStatusPastDue:
		if sub.LastInvoiceID == nil || s.invoices == nil {
			return false
		}
		inv, ok := s.invoices.peek(*sub.LastInvoiceID)
		return ok && inv.RetryDue(params.Now, params.MaxAttempts)
	}
	return false
}

func (s *InMemorySubscriptionStore) ReleaseLease(ctx context.Context, id string) error {
	s.Mutate(func(items map[string]*subscription.Subscription) {
		if sub, ok := items[id]; ok {
			sub.LeaseUntil = nil
		}
	})
	return nil
}

// InMemoryChangeLogStore implements subscription.ChangeLogRepository
type InMemoryChangeLogStore struct {
	*InMemoryStore[*subscription.ChangeLog]
}

func NewInMemoryChangeLogStore() *InMemoryChangeLogStore {
	return &InMemoryChangeLogStore{InMemoryStore: NewInMemoryStore[*subscription.ChangeLog]()}
}

func (s *InMemoryChangeLogStore) Create(ctx context.Context, log *subscription.ChangeLog) error {
	cp := *log
	return s.InMemoryStore.Create(ctx, log.ID, &cp)
}

func (s *InMemoryChangeLogStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.ChangeLog, error) {
	return s.List(ctx, nil, func(ctx context.Context, log *subscription.ChangeLog, _ interface{}) bool {
		return CheckTenantFilter(ctx, log.TenantID) && log.SubscriptionID == subscriptionID
	}, func(i, j *subscription.ChangeLog) bool {
		if i.CreatedAt.Equal(j.CreatedAt) {
			return i.ID < j.ID
		}
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

// InMemoryItemStore implements subscription.ItemRepository
type InMemoryItemStore struct {
	*InMemoryStore[*subscription.Item]
}

func NewInMemoryItemStore() *InMemoryItemStore {
	return &InMemoryItemStore{InMemoryStore: NewInMemoryStore[*subscription.Item]()}
}

func copyItem(item *subscription.Item) *subscription.Item {
	cp := *item
	return &cp
}

func (s *InMemoryItemStore) Create(ctx context.Context, item *subscription.Item) error {
	var err error
	s.Mutate(func(items map[string]*subscription.Item) {
		for _, existing := range items {
			if existing.SubscriptionID == item.SubscriptionID && existing.FeatureID == item.FeatureID {
				err = ierr.NewError("subscription item already exists").
					WithHint("Feature counter already exists").
					Mark(ierr.ErrAlreadyExists)
				return
			}
		}
		items[item.ID] = copyItem(item)
	})
	return err
}

func (s *InMemoryItemStore) Update(ctx context.Context, item *subscription.Item) error {
	item.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, item.ID, copyItem(item))
}

func (s *InMemoryItemStore) GetByFeature(ctx context.Context, subscriptionID, featureID string) (*subscription.Item, error) {
	items, _ := s.List(ctx, nil, func(ctx context.Context, item *subscription.Item, _ interface{}) bool {
		return item.SubscriptionID == subscriptionID && item.FeatureID == featureID
	}, nil)
	if len(items) == 0 {
		return nil, ierr.NewErrorf("no counter for feature %s", featureID).
			WithHint("Subscription item not found").
			Mark(ierr.ErrNotFound)
	}
	return copyItem(items[0]), nil
}

func (s *InMemoryItemStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.Item, error) {
	items, err := s.List(ctx, nil, func(ctx context.Context, item *subscription.Item, _ interface{}) bool {
		return item.SubscriptionID == subscriptionID
	}, func(i, j *subscription.Item) bool {
		return i.FeatureID < j.FeatureID
	})
	if err != nil {
		return nil, err
	}
	out := make([]*subscription.Item, len(items))
	for i, item := range items {
		out[i] = copyItem(item)
	}
	return out, nil
}

func (s *InMemoryItemStore) ListResetDue(ctx context.Context, now time.Time, limit int) ([]*subscription.Item, error) {
	items, err := s.List(ctx, nil, func(_ context.Context, item *subscription.Item, _ interface{}) bool {
		return item.ResetDue(now)
	}, func(i, j *subscription.Item) bool {
		return i.ResetsAt.Before(*j.ResetsAt)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*subscription.Item, len(items))
	for i, item := range items {
		out[i] = copyItem(item)
	}
	return out, nil
}

var (
	_ subscription.Repository          = (*InMemorySubscriptionStore)(nil)
	_ subscription.ChangeLogRepository = (*InMemoryChangeLogStore)(nil)
	_ subscription.ItemRepository      = (*InMemoryItemStore)(nil)
	_ invoice.Repository               = (*InMemoryInvoiceStore)(nil)
)
