package testutil

import (
	"context"
	"sync/atomic"

	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil)

// MockPostgresClient runs WithTx callbacks without a transaction. The
// in-memory stores apply writes immediately, so a failing callback does not
// roll anything back; tests that depend on rollback use sqlmock instead.
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64
}

func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{logger: logger}
}

func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	c.txs.Add(1)
	return fn(ctx)
}

// TxCount returns how many WithTx calls were made
func (c *MockPostgresClient) TxCount() int {
	return int(c.txs.Load())
}
