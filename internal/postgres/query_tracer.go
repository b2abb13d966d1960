package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/types"
	"github.com/jmoiron/sqlx"
)

// SlowQueryThreshold is the duration above which a statement is logged at
// warn level
const SlowQueryThreshold = 500 * time.Millisecond

// QueryTracer logs the duration and outcome of a single statement
type QueryTracer struct {
	logger   *logger.Logger
	query    string
	params   interface{}
	start    time.Time
	txID     string
	tenantID string
}

// NewQueryTracer creates a new query tracer for a statement issued under ctx
func NewQueryTracer(ctx context.Context, logger *logger.Logger, query string, params interface{}, txID string) *QueryTracer {
	return &QueryTracer{
		logger:   logger,
		query:    query,
		params:   params,
		start:    time.Now(),
		txID:     txID,
		tenantID: types.GetTenantID(ctx),
	}
}

// Done logs the query completion. sql.ErrNoRows is an expected outcome and
// is logged at debug level.
func (qt *QueryTracer) Done(err error) {
	elapsed := time.Since(qt.start)
	fields := []interface{}{
		"duration_ms", elapsed.Milliseconds(),
		"query", qt.query,
		"params", fmt.Sprintf("%+v", qt.params),
	}
	if qt.txID != "" {
		fields = append(fields, "tx_id", qt.txID)
	}
	if qt.tenantID != "" {
		fields = append(fields, "tenant_id", qt.tenantID)
	}

	switch {
	case err != nil && err != sql.ErrNoRows:
		fields = append(fields, "error", err.Error())
		qt.logger.Errorw("database query failed", fields...)
	case elapsed > SlowQueryThreshold:
		qt.logger.Warnw("slow database query", fields...)
	default:
		qt.logger.Debugw("database query completed", fields...)
	}
}

// TracedQuerier wraps a Querier with tracing
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

// NewTracedQuerier creates a new traced querier
func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tracer := NewQueryTracer(ctx, tq.logger, query, args, tq.txID)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	tracer.Done(err)
	return result, err
}

func (tq *TracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	tracer := NewQueryTracer(ctx, tq.logger, query, args, tq.txID)
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	tracer.Done(err)
	return rows, err
}

func (tq *TracedQuerier) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	tracer := NewQueryTracer(ctx, tq.logger, query, args, tq.txID)
	rows, err := tq.Querier.QueryxContext(ctx, query, args...)
	tracer.Done(err)
	return rows, err
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := NewQueryTracer(ctx, tq.logger, query, args, tq.txID)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	tracer.Done(err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := NewQueryTracer(ctx, tq.logger, query, args, tq.txID)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	tracer.Done(err)
	return err
}
