package postgres

import (
	"context"

	"github.com/flexprice/billing/internal/domain/usage"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

// Create relies on the (feature_id, correlation_id) unique key so that two
// concurrent replays of the same event cannot both be applied
func (r *usageRepository) Create(ctx context.Context, record *usage.Record) error {
	query := `
		INSERT INTO usage_records (
			id, tenant_id, subscription_id, user_id, feature_id, quantity,
			correlation_id, occurred_at, created_at, created_by
		) VALUES (
			:id, :tenant_id, :subscription_id, :user_id, :feature_id, :quantity,
			:correlation_id, :occurred_at, :created_at, :created_by
		)
		ON CONFLICT (feature_id, correlation_id) DO NOTHING
	`

	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return mapError(err, "usage record", "create")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return mapError(err, "usage record", "create")
	}
	if rows == 0 {
		return ierr.NewError("usage already recorded").
			WithHint("Usage with this correlation id was already recorded").
			WithReportableDetails(map[string]any{
				"feature_id":     record.FeatureID,
				"correlation_id": record.CorrelationID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (r *usageRepository) GetByCorrelation(ctx context.Context, featureID, correlationID string) (*usage.Record, error) {
	query := `
		SELECT * FROM usage_records
		WHERE tenant_id = $1 AND feature_id = $2 AND correlation_id = $3
	`

	var record usage.Record
	err := r.db.GetQuerier(ctx).GetContext(ctx, &record, query, types.GetTenantID(ctx), featureID, correlationID)
	if err != nil {
		return nil, mapError(err, "usage record", "get")
	}
	return &record, nil
}
