package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/billing/internal/domain/webhook"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
)

type webhookEndpointRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWebhookEndpointRepository(db *postgres.DB, logger *logger.Logger) webhook.EndpointRepository {
	return &webhookEndpointRepository{db: db, logger: logger}
}

func (r *webhookEndpointRepository) Create(ctx context.Context, endpoint *webhook.Endpoint) error {
	query := `
		INSERT INTO webhook_endpoints (
			id, url, secret, event_types_csv, active, description,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :url, :secret, :event_types_csv, :active, :description,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, endpoint)
	return mapError(err, "webhook endpoint", "create")
}

func (r *webhookEndpointRepository) Get(ctx context.Context, id string) (*webhook.Endpoint, error) {
	query := `
		SELECT * FROM webhook_endpoints
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`

	var endpoint webhook.Endpoint
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &endpoint, query, id, types.GetTenantID(ctx), types.StatusPublished); err != nil {
		return nil, mapError(err, "webhook endpoint", "get")
	}
	return &endpoint, nil
}

func (r *webhookEndpointRepository) Update(ctx context.Context, endpoint *webhook.Endpoint) error {
	endpoint.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE webhook_endpoints
		SET
			url = :url,
			secret = :secret,
			event_types_csv = :event_types_csv,
			active = :active,
			description = :description,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND status = 'published'
	`
	result, err := r.db.NamedExecContext(ctx, query, endpoint)
	if err != nil {
		return mapError(err, "webhook endpoint", "update")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(errNoRows, "webhook endpoint", "update")
	}
	return nil
}

// Delete soft-deletes the endpoint so its delivery history stays readable
func (r *webhookEndpointRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_endpoints
		SET status = $1, active = FALSE, updated_at = $2, updated_by = $3
		WHERE id = $4 AND tenant_id = $5 AND status = 'published'
	`
	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx), id, types.GetTenantID(ctx))
	if err != nil {
		return mapError(err, "webhook endpoint", "delete")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(errNoRows, "webhook endpoint", "delete")
	}
	return nil
}

func (r *webhookEndpointRepository) List(ctx context.Context, filter *types.WebhookEndpointFilter) ([]*webhook.Endpoint, error) {
	query := `SELECT * FROM webhook_endpoints WHERE tenant_id = $1 AND status = $2`
	args := []interface{}{types.GetTenantID(ctx), types.StatusPublished}

	var qf *types.QueryFilter
	if filter != nil {
		qf = filter.QueryFilter
		if filter.ActiveOnly {
			query += " AND active = TRUE"
		}
	}
	query += " ORDER BY created_at DESC, id DESC"
	if qf != nil && !qf.IsUnlimited() {
		args = append(args, qf.GetLimit(), qf.GetOffset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var endpoints []*webhook.Endpoint
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &endpoints, query, args...); err != nil {
		return nil, mapError(err, "webhook endpoint", "list")
	}
	return endpoints, nil
}

func (r *webhookEndpointRepository) ListActive(ctx context.Context) ([]*webhook.Endpoint, error) {
	return r.List(ctx, &types.WebhookEndpointFilter{ActiveOnly: true})
}

type webhookDeliveryRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWebhookDeliveryRepository(db *postgres.DB, logger *logger.Logger) webhook.DeliveryRepository {
	return &webhookDeliveryRepository{db: db, logger: logger}
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, d *webhook.Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, tenant_id, endpoint_id, event_id, event_type, payload, attempted_at,
			response_status_code, response_body, retry_count, success, next_retry_at,
			permanently_failed, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		d.ID, d.TenantID, d.EndpointID, d.EventID, d.EventType, string(d.Payload), d.AttemptedAt,
		d.ResponseStatusCode, d.ResponseBody, d.RetryCount, d.Success, d.NextRetryAt,
		d.PermanentlyFailed, d.Error, d.CreatedAt)
	return mapError(err, "webhook delivery", "create")
}

func (r *webhookDeliveryRepository) GetLatest(ctx context.Context, endpointID, eventID string) (*webhook.Delivery, error) {
	query := `
		SELECT * FROM webhook_deliveries
		WHERE endpoint_id = $1 AND event_id = $2
		ORDER BY retry_count DESC, attempted_at DESC
		LIMIT 1
	`

	var d webhook.Delivery
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &d, query, endpointID, eventID); err != nil {
		return nil, mapError(err, "webhook delivery", "get")
	}
	return &d, nil
}

func (r *webhookDeliveryRepository) List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*webhook.Delivery, error) {
	query := `SELECT * FROM webhook_deliveries WHERE tenant_id = $1`
	args := []interface{}{types.GetTenantID(ctx)}

	var qf *types.QueryFilter
	if filter != nil {
		qf = filter.QueryFilter
		if filter.EndpointID != "" {
			args = append(args, filter.EndpointID)
			query += fmt.Sprintf(" AND endpoint_id = $%d", len(args))
		}
		if filter.EventID != "" {
			args = append(args, filter.EventID)
			query += fmt.Sprintf(" AND event_id = $%d", len(args))
		}
	}
	query += " ORDER BY attempted_at DESC, id DESC"
	if qf != nil && !qf.IsUnlimited() {
		args = append(args, qf.GetLimit(), qf.GetOffset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var deliveries []*webhook.Delivery
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &deliveries, query, args...); err != nil {
		return nil, mapError(err, "webhook delivery", "list")
	}
	return deliveries, nil
}
