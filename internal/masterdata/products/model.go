package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product statuses. Non-active products are kept for history but cannot be
// quoted or ordered.
const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusOutOfStock = "out_of_stock"
)

// Product represents a catalog entry owned by a supplier company.
type Product struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Unit        string          `json:"unit"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
