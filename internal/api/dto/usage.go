package dto

import (
	"time"

	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/validator"
	"github.com/shopspring/decimal"
)

// RecordUsageRequest reports usage of one feature. CorrelationID makes the
// call idempotent; a replay is accepted and ignored.
type RecordUsageRequest struct {
	SubscriptionID string          `json:"subscription_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	FeatureID      string          `json:"feature_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	CorrelationID  string          `json:"correlation_id" validate:"required,max=255"`
	OccurredAt     *time.Time      `json:"occurred_at,omitempty"`
}

func (r *RecordUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.SubscriptionID == "" && r.UserID == "" {
		return ierr.NewError("subscription_id or user_id is required").
			WithHint("Either subscription_id or user_id is required").
			Mark(ierr.ErrValidation)
	}
	if !r.Quantity.IsPositive() {
		return ierr.NewError("quantity must be positive").
			WithHint("Quantity must be greater than zero").
			WithReportableDetails(map[string]any{"quantity": r.Quantity.String()}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

type RecordUsageResponse struct {
	Record *usage.Record      `json:"record"`
	Item   *subscription.Item `json:"item,omitempty"`
	// Duplicate is true when the correlation id was already applied
	Duplicate bool             `json:"duplicate"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
	Overage   decimal.Decimal  `json:"overage"`
}
