package testutil

import (
	"context"

	"github.com/flexprice/billing/internal/domain/usage"
	ierr "github.com/flexprice/billing/internal/errors"
)

// InMemoryUsageStore implements usage.Repository with the same
// (feature, correlation id) uniqueness as the table
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.Record]
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{InMemoryStore: NewInMemoryStore[*usage.Record]()}
}

func (s *InMemoryUsageStore) Create(ctx context.Context, rec *usage.Record) error {
	var err error
	s.Mutate(func(items map[string]*usage.Record) {
		for _, existing := range items {
			if existing.FeatureID == rec.FeatureID && existing.CorrelationID == rec.CorrelationID {
				err = ierr.NewErrorf("usage %s already recorded", rec.CorrelationID).
					WithHint("Usage with this correlation id was already recorded").
					Mark(ierr.ErrAlreadyExists)
				return
			}
		}
		cp := *rec
		items[rec.ID] = &cp
	})
	return err
}

func (s *InMemoryUsageStore) GetByCorrelation(ctx context.Context, featureID, correlationID string) (*usage.Record, error) {
	recs, _ := s.List(ctx, nil, func(_ context.Context, r *usage.Record, _ interface{}) bool {
		return r.FeatureID == featureID && r.CorrelationID == correlationID
	}, nil)
	if len(recs) == 0 {
		return nil, ierr.NewError("usage record not found").
			WithHint("Usage record not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *recs[0]
	return &cp, nil
}

var _ usage.Repository = (*InMemoryUsageStore)(nil)
