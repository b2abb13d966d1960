package plan

import (
	"context"
	"time"
)

// Repository reads plans, their prices and their features
type Repository interface {
	Get(ctx context.Context, id string) (*Plan, error)
	// GetEffectivePrice returns the price of planID in currency that is in
	// effect at, preferring the latest EffectiveFrom. ErrNotFound when none.
	GetEffectivePrice(ctx context.Context, planID, currency string, at time.Time) (*Price, error)
	ListFeatures(ctx context.Context, planID string) ([]*Feature, error)
	GetFeature(ctx context.Context, planID, featureID string) (*Feature, error)
}
