package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/billing/internal/domain/invoice"
	"github.com/flexprice/billing/internal/domain/outbox"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
	"github.com/flexprice/billing/internal/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return postgres.NewFromSQL(sqlDB, logger.NewNopLogger()), mock
}

func tenantCtx() context.Context {
	ctx := context.WithValue(context.Background(), types.CtxTenantID, "tenant_1")
	return context.WithValue(ctx, types.CtxUserID, "user_1")
}

func testSubscription() *subscription.Subscription {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	return &subscription.Subscription{
		ID:                 "subs_1",
		UserID:             "user_1",
		PlanID:             "plan_1",
		Currency:           "TRY",
		UnitPrice:          decimal.NewFromInt(100),
		BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
		BillingPeriodCount: 1,
		BillingAnchor:      start,
		StartAt:            start,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		RenewAt:            &end,
		RenewalPolicy:      types.RenewalPolicyAuto,
		SubscriptionStatus: types.SubscriptionStatusActive,
		Version:            3,
		BaseModel:          types.BaseModel{TenantID: "tenant_1", Status: types.StatusPublished},
	}
}

func TestSubscriptionRepository_ClaimDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNopLogger())

	now := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	lease := now.Add(5 * time.Minute)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "plan_id", "currency", "unit_price", "subscription_status", "renewal_policy", "version", "lease_until"}).
		AddRow("subs_1", "tenant_1", "user_1", "plan_1", "TRY", "100", "active", "auto", 3, lease).
		AddRow("subs_2", "tenant_2", "user_2", "plan_1", "TRY", "100", "past_due", "auto", 7, lease)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF c SKIP LOCKED")).
		WithArgs(now, lease, 4, 50).
		WillReturnRows(rows)

	subs, err := repo.ClaimDue(context.Background(), subscription.ClaimDueParams{
		Now:         now,
		LeaseUntil:  lease,
		MaxAttempts: 4,
		Limit:       50,
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "tenant_2", subs[1].TenantID)
	assert.Equal(t, types.SubscriptionStatusPastDue, subs[1].SubscriptionStatus)
	assert.True(t, subs[0].UnitPrice.Equal(decimal.NewFromInt(100)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_UpdateVersionConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNopLogger())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sub := testSubscription()
	err := repo.Update(tenantCtx(), sub)

	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, int64(3), sub.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_UpdateBumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNopLogger())

	mock.ExpectExec(regexp.QuoteMeta("version = version + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub := testSubscription()
	require.NoError(t, repo.Update(tenantCtx(), sub))
	assert.Equal(t, int64(4), sub.Version)
	assert.Equal(t, "user_1", sub.UpdatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNopLogger())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM subscriptions")).
		WithArgs("subs_missing", "tenant_1", types.StatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(tenantCtx(), "subs_missing")
	assert.True(t, ierr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionItemRepository_UpdateWritesOverageBookkeeping(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionItemRepository(db, logger.NewNopLogger())

	allotted := decimal.NewFromInt(10)
	price := decimal.NewFromInt(2)
	resetsAt := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	item := &subscription.Item{
		ID:             "subi_1",
		SubscriptionID: "subs_1",
		FeatureID:      "feat_exports",
		Allotted:       &allotted,
		Used:           decimal.NewFromInt(13),
		BilledOverage:  decimal.NewFromInt(3),
		CarriedOverage: decimal.NewFromInt(4),
		AllowOverage:   true,
		OverusePrice:   &price,
		ResetInterval:  types.RESET_INTERVAL_MONTHLY,
		ResetsAt:       &resetsAt,
		BaseModel:      types.BaseModel{TenantID: "tenant_1", Status: types.StatusPublished},
	}

	mock.ExpectExec(regexp.QuoteMeta("carried_overage = $4")).
		WithArgs("10", "13", "3", "4", true, "2", resetsAt, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "subi_1", "tenant_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(tenantCtx(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_DuplicateIsAlreadyExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsageRepository(db, logger.NewNopLogger())

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (feature_id, correlation_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(tenantCtx(), &usage.Record{
		ID:            "usage_1",
		TenantID:      "tenant_1",
		FeatureID:     "feat_api_calls",
		Quantity:      decimal.NewFromInt(5),
		CorrelationID: "evt-42",
		OccurredAt:    time.Now().UTC(),
	})
	assert.True(t, ierr.IsAlreadyExists(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_UniqueViolationIsAlreadyExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db, logger.NewNopLogger())

	now := time.Now().UTC()
	inv := testInvoice(now)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoices")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.Create(tenantCtx(), inv)
	assert.True(t, ierr.IsAlreadyExists(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ClaimPendingOrdersByOccurredAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db, logger.NewNopLogger())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "event_type", "payload", "occurred_at", "retries"}).
		AddRow("evt_2", "tenant_1", types.EventInvoicePaid, []byte(`{"b":1}`), now.Add(time.Second), 0).
		AddRow("evt_1", "tenant_1", types.EventSubscriptionRenewed, []byte(`{"a":1}`), now, 0)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(now, now.Add(time.Minute), 25, 10).
		WillReturnRows(rows)

	msgs, err := repo.ClaimPending(context.Background(), outbox.ClaimParams{
		Now:        now,
		LeaseUntil: now.Add(time.Minute),
		MaxRetries: 25,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "evt_1", msgs[0].ID)
	assert.JSONEq(t, `{"a":1}`, string(msgs[0].Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_DeferKeepsRetries(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db, logger.NewNopLogger())

	next := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE outbox_messages\s+SET last_error = \$2, lease_until = \$3\s+WHERE id = \$1 AND processed_at IS NULL`).
		WithArgs("evt_1", "webhook: awaiting retry", next).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Defer(context.Background(), "evt_1", "webhook: awaiting retry", next))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_CreateSendsPayloadAsText(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db, logger.NewNopLogger())

	now := time.Now().UTC()
	msg := &outbox.Message{
		ID:         "evt_1",
		TenantID:   "tenant_1",
		EventType:  types.EventInvoicePaid,
		Payload:    json.RawMessage(`{"invoice_id":"inv_1"}`),
		OccurredAt: now,
		CreatedAt:  now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_messages")).
		WithArgs("evt_1", "tenant_1", types.EventInvoicePaid, `{"invoice_id":"inv_1"}`, now, 0, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDeliveryRepository_GetLatestNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookDeliveryRepository(db, logger.NewNopLogger())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM webhook_deliveries")).
		WithArgs("whep_1", "evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetLatest(context.Background(), "whep_1", "evt_1")
	assert.True(t, ierr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func testInvoice(now time.Time) *invoice.Invoice {
	return &invoice.Invoice{
		ID:             "inv_1",
		SubscriptionID: "subs_1",
		UserID:         "user_1",
		InvoiceNumber:  "INV-1",
		IdempotencyKey: "subscription_invoice-abc",
		Currency:       "TRY",
		Subtotal:       decimal.NewFromInt(100),
		Tax:            decimal.Zero,
		Total:          decimal.NewFromInt(100),
		PeriodStart:    now,
		PeriodEnd:      now.AddDate(0, 1, 0),
		DueDate:        now,
		PaymentStatus:  types.PaymentStatusPending,
		BaseModel:      types.BaseModel{TenantID: "tenant_1", Status: types.StatusPublished},
	}
}
