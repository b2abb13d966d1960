package plan

import (
	"time"

	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Plan is read-only here; plans are managed by the catalog
type Plan struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`

	types.BaseModel
}

// Price is one effective-dated recurring price of a plan
type Price struct {
	ID                 string              `db:"id" json:"id"`
	PlanID             string              `db:"plan_id" json:"plan_id"`
	Currency           string              `db:"currency" json:"currency"`
	Amount             decimal.Decimal     `db:"amount" json:"amount"`
	BillingPeriod      types.BillingPeriod `db:"billing_period" json:"billing_period"`
	BillingPeriodCount int                 `db:"billing_period_count" json:"billing_period_count"`
	EffectiveFrom      time.Time           `db:"effective_from" json:"effective_from"`
	EffectiveTo        *time.Time          `db:"effective_to" json:"effective_to,omitempty"`

	types.BaseModel
}

// EffectiveAt reports whether the price applies at t (from inclusive, to exclusive)
func (p *Price) EffectiveAt(t time.Time) bool {
	if t.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveTo == nil || t.Before(*p.EffectiveTo)
}

// Feature is a metered or boolean entitlement attached to a plan
type Feature struct {
	ID        string `db:"id" json:"id"`
	PlanID    string `db:"plan_id" json:"plan_id"`
	FeatureID string `db:"feature_id" json:"feature_id"`
	Name      string `db:"name" json:"name"`
	IsMetered bool   `db:"is_metered" json:"is_metered"`
	// Limit is the allotment per reset interval; nil means unlimited
	Limit         *decimal.Decimal    `db:"usage_limit" json:"limit,omitempty"`
	AllowOverage  bool                `db:"allow_overage" json:"allow_overage"`
	OverusePrice  *decimal.Decimal    `db:"overuse_price" json:"overuse_price,omitempty"`
	ResetInterval types.ResetInterval `db:"reset_interval" json:"reset_interval"`

	types.BaseModel
}
