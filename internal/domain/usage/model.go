package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one accepted usage event. (FeatureID, CorrelationID) is unique,
// which is what makes recording idempotent.
type Record struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	SubscriptionID string          `db:"subscription_id" json:"subscription_id"`
	UserID         string          `db:"user_id" json:"user_id"`
	FeatureID      string          `db:"feature_id" json:"feature_id"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	CorrelationID  string          `db:"correlation_id" json:"correlation_id"`
	OccurredAt     time.Time       `db:"occurred_at" json:"occurred_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	CreatedBy      string          `db:"created_by" json:"created_by,omitempty"`
}
