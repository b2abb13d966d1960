package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	if inv.Version == 0 {
		inv.Version = 1
	}

	invoiceQuery := `
		INSERT INTO invoices (
			id, subscription_id, user_id, invoice_number, idempotency_key, currency,
			subtotal, tax, total, period_start, period_end, due_date,
			payment_status, payment_attempt_count, next_retry_at, paid_at, failed_at,
			provider_name, provider_reference, requires_action, last_error_code, last_error_message,
			version, tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_id, :user_id, :invoice_number, :idempotency_key, :currency,
			:subtotal, :tax, :total, :period_start, :period_end, :due_date,
			:payment_status, :payment_attempt_count, :next_retry_at, :paid_at, :failed_at,
			:provider_name, :provider_reference, :requires_action, :last_error_code, :last_error_message,
			:version, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
	`

	lineItemQuery := `
		INSERT INTO invoice_line_items (
			id, invoice_id, line_type, feature_id, description, quantity, unit_amount, amount, currency,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :invoice_id, :line_type, :feature_id, :description, :quantity, :unit_amount, :amount, :currency,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
	`

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.NamedExecContext(ctx, invoiceQuery, inv); err != nil {
			return mapError(err, "invoice", "create")
		}
		for _, li := range inv.LineItems {
			li.InvoiceID = inv.ID
			if _, err := r.db.NamedExecContext(ctx, lineItemQuery, li); err != nil {
				return mapError(err, "invoice line item", "create")
			}
		}
		return nil
	})
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`

	var inv invoice.Invoice
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, id, types.GetTenantID(ctx), types.StatusPublished); err != nil {
		return nil, mapError(err, "invoice", "get")
	}
	if err := r.loadLineItems(ctx, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) GetByIdempotencyKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	query := `SELECT * FROM invoices WHERE idempotency_key = $1 AND tenant_id = $2`

	var inv invoice.Invoice
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, key, types.GetTenantID(ctx)); err != nil {
		return nil, mapError(err, "invoice", "get")
	}
	if err := r.loadLineItems(ctx, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		SELECT * FROM invoice_line_items
		WHERE invoice_id = $1 AND tenant_id = $2
		ORDER BY created_at, id
	`
	var items []*invoice.LineItem
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query, inv.ID, inv.TenantID); err != nil {
		return mapError(err, "invoice line item", "list")
	}
	inv.LineItems = items
	return nil
}

// Update writes the payment state of the invoice. Amounts and period are
// immutable once created.
func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	inv.UpdatedAt = time.Now().UTC()
	if userID := types.GetUserID(ctx); userID != "" {
		inv.UpdatedBy = userID
	}

	query := `
		UPDATE invoices
		SET
			payment_status = :payment_status,
			payment_attempt_count = :payment_attempt_count,
			next_retry_at = :next_retry_at,
			paid_at = :paid_at,
			failed_at = :failed_at,
			provider_name = :provider_name,
			provider_reference = :provider_reference,
			requires_action = :requires_action,
			last_error_code = :last_error_code,
			last_error_message = :last_error_message,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id AND
			version = :version
	`

	result, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return mapError(err, "invoice", "update")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return mapError(err, "invoice", "update")
	}
	if rows == 0 {
		return versionConflict("invoice", inv.ID)
	}

	inv.Version++
	return nil
}

func (r *invoiceRepository) buildWhere(ctx context.Context, filter *types.InvoiceFilter) (string, []interface{}) {
	conds := []string{"tenant_id = $1", "status = $2"}
	args := []interface{}{types.GetTenantID(ctx), types.StatusPublished}

	if filter == nil {
		return strings.Join(conds, " AND "), args
	}
	if filter.SubscriptionID != "" {
		args = append(args, filter.SubscriptionID)
		conds = append(conds, fmt.Sprintf("subscription_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.PaymentStatus) > 0 {
		statuses := lo.Map(filter.PaymentStatus, func(s types.PaymentStatus, _ int) string {
			return string(s)
		})
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("payment_status = ANY($%d)", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	where, args := r.buildWhere(ctx, filter)

	var qf *types.QueryFilter
	if filter != nil {
		qf = filter.QueryFilter
	}

	query := "SELECT * FROM invoices WHERE " + where
	if qf.GetOrder() == types.OrderAsc {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}
	if qf != nil && !qf.IsUnlimited() {
		args = append(args, qf.GetLimit(), qf.GetOffset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, mapError(err, "invoice", "list")
	}
	return invoices, nil
}

func (r *invoiceRepository) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	where, args := r.buildWhere(ctx, filter)

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, "SELECT count(*) FROM invoices WHERE "+where, args...); err != nil {
		return 0, mapError(err, "invoice", "count")
	}
	return count, nil
}

func (r *invoiceRepository) CreateAttempt(ctx context.Context, attempt *invoice.PaymentAttempt) error {
	query := `
		INSERT INTO invoice_payment_attempts (
			id, invoice_id, attempt_number, provider, attempted_at, payment_status,
			response_code, error_message, provider_reference, transient,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :invoice_id, :attempt_number, :provider, :attempted_at, :payment_status,
			:response_code, :error_message, :provider_reference, :transient,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, attempt)
	return mapError(err, "payment attempt", "create")
}

func (r *invoiceRepository) ListAttempts(ctx context.Context, invoiceID string) ([]*invoice.PaymentAttempt, error) {
	query := `
		SELECT * FROM invoice_payment_attempts
		WHERE tenant_id = $1 AND invoice_id = $2
		ORDER BY attempt_number ASC
	`

	var attempts []*invoice.PaymentAttempt
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &attempts, query, types.GetTenantID(ctx), invoiceID); err != nil {
		return nil, mapError(err, "payment attempt", "list")
	}
	return attempts, nil
}
