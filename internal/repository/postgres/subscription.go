package postgres

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.Version == 0 {
		sub.Version = 1
	}

	query := `
		INSERT INTO subscriptions (
			id,
			user_id,
			plan_id,
			currency,
			unit_price,
			price_pinned,
			billing_period,
			billing_period_count,
			billing_anchor,
			start_at,
			current_period_start,
			current_period_end,
			trial_ends_at,
			end_at,
			renew_at,
			renewal_policy,
			renewal_attempt_count,
			last_invoice_id,
			subscription_status,
			cancellation_reason,
			canceled_at,
			payment_provider,
			provider_customer_ref,
			payment_method_ref,
			version,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:user_id,
			:plan_id,
			:currency,
			:unit_price,
			:price_pinned,
			:billing_period,
			:billing_period_count,
			:billing_anchor,
			:start_at,
			:current_period_start,
			:current_period_end,
			:trial_ends_at,
			:end_at,
			:renew_at,
			:renewal_policy,
			:renewal_attempt_count,
			:last_invoice_id,
			:subscription_status,
			:cancellation_reason,
			:canceled_at,
			:payment_provider,
			:provider_customer_ref,
			:payment_method_ref,
			:version,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	return mapError(err, "subscription", "create")
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE
			id = $1 AND
			tenant_id = $2 AND
			status = $3
	`

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, id, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, mapError(err, "subscription", "get")
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	sub.UpdatedAt = time.Now().UTC()
	if userID := types.GetUserID(ctx); userID != "" {
		sub.UpdatedBy = userID
	}

	query := `
		UPDATE subscriptions
		SET
			unit_price = :unit_price,
			price_pinned = :price_pinned,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			trial_ends_at = :trial_ends_at,
			end_at = :end_at,
			renew_at = :renew_at,
			renewal_policy = :renewal_policy,
			renewal_attempt_count = :renewal_attempt_count,
			last_invoice_id = :last_invoice_id,
			subscription_status = :subscription_status,
			cancellation_reason = :cancellation_reason,
			canceled_at = :canceled_at,
			payment_provider = :payment_provider,
			provider_customer_ref = :provider_customer_ref,
			payment_method_ref = :payment_method_ref,
			lease_until = :lease_until,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id AND
			version = :version
	`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return mapError(err, "subscription", "update")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return mapError(err, "subscription", "update")
	}
	if rows == 0 {
		return versionConflict("subscription", sub.ID)
	}

	sub.Version++
	return nil
}

func (r *subscriptionRepository) GetLiveByUser(ctx context.Context, userID string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE
			tenant_id = $1 AND
			user_id = $2 AND
			status = $3 AND
			subscription_status IN ('trialing', 'active', 'renewing', 'past_due')
		ORDER BY start_at DESC
		LIMIT 1
	`

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, types.GetTenantID(ctx), userID, types.StatusPublished)
	if err != nil {
		return nil, mapError(err, "subscription", "get")
	}
	return &sub, nil
}

// claimDueQuery leases due subscriptions in one statement. SKIP LOCKED lets
// concurrent workers claim disjoint batches.
const claimDueQuery = `
	UPDATE subscriptions s
	SET lease_until = $2
	WHERE s.id IN (
		SELECT c.id
		FROM subscriptions c
		LEFT JOIN invoices i ON i.id = c.last_invoice_id
		WHERE
			c.status = 'published' AND
			c.renewal_policy <> 'none' AND
			(c.lease_until IS NULL OR c.lease_until <= $1) AND
			(
				(c.subscription_status IN ('trialing', 'active') AND c.renew_at <= $1)
				OR (
					c.subscription_status = 'past_due' AND
					i.payment_status = 'failed' AND
					i.next_retry_at <= $1 AND
					i.payment_attempt_count < $3
				)
				OR c.subscription_status = 'renewing'
			)
		ORDER BY c.renew_at ASC NULLS LAST, c.id
		LIMIT $4
		FOR UPDATE OF c SKIP LOCKED
	)
	RETURNING s.*
`

func (r *subscriptionRepository) ClaimDue(ctx context.Context, params subscription.ClaimDueParams) ([]*subscription.Subscription, error) {
	var subs []*subscription.Subscription
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, claimDueQuery,
		params.Now, params.LeaseUntil, params.MaxAttempts, params.Limit)
	if err != nil {
		return nil, mapError(err, "subscription", "claim")
	}
	return subs, nil
}

func (r *subscriptionRepository) ReleaseLease(ctx context.Context, id string) error {
	query := `UPDATE subscriptions SET lease_until = NULL WHERE id = $1`
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, id)
	return mapError(err, "subscription", "release")
}
