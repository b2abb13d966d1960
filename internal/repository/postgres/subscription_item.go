package postgres

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
)

type subscriptionItemRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionItemRepository(db *postgres.DB, logger *logger.Logger) subscription.ItemRepository {
	return &subscriptionItemRepository{db: db, logger: logger}
}

func (r *subscriptionItemRepository) Create(ctx context.Context, item *subscription.Item) error {
	query := `
		INSERT INTO subscription_items (
			id, subscription_id, feature_id, allotted, used, billed_overage,
			carried_overage, allow_overage, overuse_price, reset_interval,
			resets_at, last_reset_at,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_id, :feature_id, :allotted, :used, :billed_overage,
			:carried_overage, :allow_overage, :overuse_price, :reset_interval,
			:resets_at, :last_reset_at,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, item)
	return mapError(err, "subscription item", "create")
}

func (r *subscriptionItemRepository) Update(ctx context.Context, item *subscription.Item) error {
	item.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE subscription_items
		SET
			allotted = :allotted,
			used = :used,
			billed_overage = :billed_overage,
			carried_overage = :carried_overage,
			allow_overage = :allow_overage,
			overuse_price = :overuse_price,
			resets_at = :resets_at,
			last_reset_at = :last_reset_at,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`
	result, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return mapError(err, "subscription item", "update")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(errNoRows, "subscription item", "update")
	}
	return nil
}

func (r *subscriptionItemRepository) GetByFeature(ctx context.Context, subscriptionID, featureID string) (*subscription.Item, error) {
	query := `
		SELECT * FROM subscription_items
		WHERE tenant_id = $1 AND subscription_id = $2 AND feature_id = $3 AND status = $4
	`

	var item subscription.Item
	err := r.db.GetQuerier(ctx).GetContext(ctx, &item, query,
		types.GetTenantID(ctx), subscriptionID, featureID, types.StatusPublished)
	if err != nil {
		return nil, mapError(err, "subscription item", "get")
	}
	return &item, nil
}

func (r *subscriptionItemRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.Item, error) {
	query := `
		SELECT * FROM subscription_items
		WHERE tenant_id = $1 AND subscription_id = $2 AND status = $3
		ORDER BY feature_id
	`

	var items []*subscription.Item
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query,
		types.GetTenantID(ctx), subscriptionID, types.StatusPublished)
	if err != nil {
		return nil, mapError(err, "subscription item", "list")
	}
	return items, nil
}

func (r *subscriptionItemRepository) ListResetDue(ctx context.Context, now time.Time, limit int) ([]*subscription.Item, error) {
	query := `
		SELECT * FROM subscription_items
		WHERE status = 'published' AND resets_at IS NOT NULL AND resets_at <= $1
		ORDER BY resets_at ASC
		LIMIT $2
	`

	var items []*subscription.Item
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query, now, limit); err != nil {
		return nil, mapError(err, "subscription item", "list")
	}
	return items, nil
}
