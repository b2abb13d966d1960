package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/billing/internal/domain/invoice"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/types"
	"github.com/samber/lo"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]

	mu       sync.RWMutex
	attempts map[string][]*invoice.PaymentAttempt
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
		attempts:      make(map[string][]*invoice.PaymentAttempt),
	}
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.LineItems = append([]*invoice.LineItem(nil), inv.LineItems...)
	return &cp
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	if inv.Version == 0 {
		inv.Version = 1
	}

	var err error
	s.Mutate(func(items map[string]*invoice.Invoice) {
		for _, existing := range items {
			if existing.IdempotencyKey == inv.IdempotencyKey {
				err = ierr.NewError("invoice already exists").
					WithHint("An invoice for this period already exists").
					WithReportableDetails(map[string]any{"idempotency_key": inv.IdempotencyKey}).
					Mark(ierr.ErrAlreadyExists)
				return
			}
		}
		if _, ok := items[inv.ID]; ok {
			err = ierr.NewError("invoice already exists").Mark(ierr.ErrAlreadyExists)
			return
		}
		items[inv.ID] = copyInvoice(inv)
	})
	return err
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, inv.TenantID) {
		return nil, ierr.NewErrorf("invoice %s not found", id).
			WithHintf("Invoice %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) GetByIdempotencyKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	invs, _ := s.InMemoryStore.List(ctx, nil, func(_ context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.IdempotencyKey == key
	}, nil)
	if len(invs) == 0 {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(invs[0]), nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	var err error
	s.Mutate(func(items map[string]*invoice.Invoice) {
		stored, ok := items[inv.ID]
		if !ok || stored.Version != inv.Version {
			err = ierr.NewErrorf("invoice %s was modified concurrently", inv.ID).
				WithHint("invoice was modified by another request, reload and retry").
				Mark(ierr.ErrVersionConflict)
			return
		}
		inv.Version++
		inv.UpdatedAt = time.Now().UTC()
		items[inv.ID] = copyInvoice(inv)
	})
	return err
}

func invoiceFilterFn(ctx context.Context, inv *invoice.Invoice, filter interface{}) bool {
	if !CheckTenantFilter(ctx, inv.TenantID) || inv.Status != types.StatusPublished {
		return false
	}
	f, ok := filter.(*types.InvoiceFilter)
	if !ok || f == nil {
		return true
	}
	if f.SubscriptionID != "" && inv.SubscriptionID != f.SubscriptionID {
		return false
	}
	if f.UserID != "" && inv.UserID != f.UserID {
		return false
	}
	if len(f.PaymentStatus) > 0 && !lo.Contains(f.PaymentStatus, inv.PaymentStatus) {
		return false
	}
	return true
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	invs, err := s.InMemoryStore.List(ctx, filterArg(filter), invoiceFilterFn, func(i, j *invoice.Invoice) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(invs, func(inv *invoice.Invoice, _ int) *invoice.Invoice {
		return copyInvoice(inv)
	}), nil
}

func (s *InMemoryInvoiceStore) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filterArg(filter), invoiceFilterFn)
}

func (s *InMemoryInvoiceStore) CreateAttempt(ctx context.Context, attempt *invoice.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.attempts[attempt.InvoiceID] {
		if a.AttemptNumber == attempt.AttemptNumber {
			return ierr.NewErrorf("attempt %d already recorded", attempt.AttemptNumber).
				WithHint("Payment attempt already recorded").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *attempt
	s.attempts[attempt.InvoiceID] = append(s.attempts[attempt.InvoiceID], &cp)
	return nil
}

func (s *InMemoryInvoiceStore) ListAttempts(ctx context.Context, invoiceID string) ([]*invoice.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*invoice.PaymentAttempt, 0, len(s.attempts[invoiceID]))
	for _, a := range s.attempts[invoiceID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// peek reads an invoice without tenant scoping, for cross-store lookups
func (s *InMemoryInvoiceStore) peek(id string) (*invoice.Invoice, bool) {
	inv, err := s.InMemoryStore.Get(context.Background(), id)
	if err != nil {
		return nil, false
	}
	return inv, true
}

func (s *InMemoryInvoiceStore) Clear() {
	s.InMemoryStore.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = make(map[string][]*invoice.PaymentAttempt)
}
