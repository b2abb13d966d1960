package postgres

import (
	"context"

	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
)

type changeLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewChangeLogRepository(db *postgres.DB, logger *logger.Logger) subscription.ChangeLogRepository {
	return &changeLogRepository{db: db, logger: logger}
}

func (r *changeLogRepository) Create(ctx context.Context, log *subscription.ChangeLog) error {
	query := `
		INSERT INTO subscription_change_logs (
			id, subscription_id, change_type, from_status, to_status,
			period_start, period_end, invoice_id, description,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_id, :change_type, :from_status, :to_status,
			:period_start, :period_end, :invoice_id, :description,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return mapError(err, "subscription change log", "create")
}

func (r *changeLogRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.ChangeLog, error) {
	query := `
		SELECT * FROM subscription_change_logs
		WHERE tenant_id = $1 AND subscription_id = $2
		ORDER BY created_at ASC, id ASC
	`

	var logs []*subscription.ChangeLog
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &logs, query, types.GetTenantID(ctx), subscriptionID)
	if err != nil {
		return nil, mapError(err, "subscription change log", "list")
	}
	return logs, nil
}
