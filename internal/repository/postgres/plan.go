package postgres

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/domain/plan"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
)

type planRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return &planRepository{db: db, logger: logger}
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	query := `
		SELECT * FROM plans
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`

	var p plan.Plan
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, id, types.GetTenantID(ctx), types.StatusPublished); err != nil {
		return nil, mapError(err, "plan", "get")
	}
	return &p, nil
}

func (r *planRepository) GetEffectivePrice(ctx context.Context, planID, currency string, at time.Time) (*plan.Price, error) {
	query := `
		SELECT * FROM plan_prices
		WHERE
			tenant_id = $1 AND
			plan_id = $2 AND
			lower(currency) = lower($3) AND
			status = $4 AND
			effective_from <= $5 AND
			(effective_to IS NULL OR effective_to > $5)
		ORDER BY effective_from DESC
		LIMIT 1
	`

	var price plan.Price
	err := r.db.GetQuerier(ctx).GetContext(ctx, &price, query,
		types.GetTenantID(ctx), planID, currency, types.StatusPublished, at)
	if err != nil {
		return nil, mapError(err, "plan price", "get")
	}
	return &price, nil
}

func (r *planRepository) ListFeatures(ctx context.Context, planID string) ([]*plan.Feature, error) {
	query := `
		SELECT * FROM plan_features
		WHERE tenant_id = $1 AND plan_id = $2 AND status = $3
		ORDER BY feature_id
	`

	var features []*plan.Feature
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &features, query,
		types.GetTenantID(ctx), planID, types.StatusPublished)
	if err != nil {
		return nil, mapError(err, "plan feature", "list")
	}
	return features, nil
}

func (r *planRepository) GetFeature(ctx context.Context, planID, featureID string) (*plan.Feature, error) {
	query := `
		SELECT * FROM plan_features
		WHERE tenant_id = $1 AND plan_id = $2 AND feature_id = $3 AND status = $4
	`

	var feature plan.Feature
	err := r.db.GetQuerier(ctx).GetContext(ctx, &feature, query,
		types.GetTenantID(ctx), planID, featureID, types.StatusPublished)
	if err != nil {
		return nil, mapError(err, "plan feature", "get")
	}
	return &feature, nil
}
