package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flexprice/billing/internal/domain/plan"
	ierr "github.com/flexprice/billing/internal/errors"
)

// InMemoryPlanStore implements plan.Repository. Plans are read-only in the
// services so tests seed them through the Add* helpers.
type InMemoryPlanStore struct {
	*InMemoryStore[*plan.Plan]

	mu       sync.RWMutex
	prices   []*plan.Price
	features []*plan.Feature
}

func NewInMemoryPlanStore() *InMemoryPlanStore {
	return &InMemoryPlanStore{InMemoryStore: NewInMemoryStore[*plan.Plan]()}
}

func (s *InMemoryPlanStore) AddPlan(ctx context.Context, p *plan.Plan) error {
	return s.InMemoryStore.Create(ctx, p.ID, p)
}

func (s *InMemoryPlanStore) AddPrice(p *plan.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, p)
}

func (s *InMemoryPlanStore) AddFeature(f *plan.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, f)
}

func (s *InMemoryPlanStore) Get(ctx context.Context, id string) (*plan.Plan, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Plan %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return p, nil
}

func (s *InMemoryPlanStore) GetEffectivePrice(ctx context.Context, planID, currency string, at time.Time) (*plan.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *plan.Price
	for _, p := range s.prices {
		if p.PlanID != planID || !strings.EqualFold(p.Currency, currency) || !p.EffectiveAt(at) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return nil, ierr.NewErrorf("no %s price in effect for plan %s", currency, planID).
			WithHint("Plan has no current price").
			Mark(ierr.ErrNotFound)
	}
	cp := *best
	return &cp, nil
}

func (s *InMemoryPlanStore) ListFeatures(ctx context.Context, planID string) ([]*plan.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*plan.Feature
	for _, f := range s.features {
		if f.PlanID == planID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryPlanStore) GetFeature(ctx context.Context, planID, featureID string) (*plan.Feature, error) {
	features, _ := s.ListFeatures(ctx, planID)
	for _, f := range features {
		if f.FeatureID == featureID {
			return f, nil
		}
	}
	return nil, ierr.NewErrorf("feature %s not on plan %s", featureID, planID).
		WithHint("Feature is not part of the plan").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPlanStore) Clear() {
	s.InMemoryStore.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = nil
	s.features = nil
}

var _ plan.Repository = (*InMemoryPlanStore)(nil)
