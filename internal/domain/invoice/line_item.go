package invoice

import (
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

// LineItem is one charge on an invoice
type LineItem struct {
	ID          string                    `db:"id" json:"id"`
	InvoiceID   string                    `db:"invoice_id" json:"invoice_id"`
	LineType    types.InvoiceLineItemType `db:"line_type" json:"line_type"`
	FeatureID   *string                   `db:"feature_id" json:"feature_id,omitempty"`
	Description string                    `db:"description" json:"description"`
	Quantity    decimal.Decimal           `db:"quantity" json:"quantity"`
	UnitAmount  decimal.Decimal           `db:"unit_amount" json:"unit_amount"`
	Amount      decimal.Decimal           `db:"amount" json:"amount"`
	Currency    string                    `db:"currency" json:"currency"`

	types.BaseModel
}
