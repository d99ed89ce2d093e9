package products

import "github.com/shopspring/decimal"

// CreateRequest creates a catalog product.
type CreateRequest struct {
	CompanyID   int64           `json:"company_id" validate:"required,gt=0"`
	SKU         string          `json:"sku" validate:"required,min=2,max=64"`
	Name        string          `json:"name" validate:"required,min=2,max=200"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    *string         `json:"category,omitempty" validate:"omitempty,max=100"`
	Unit        string          `json:"unit" validate:"required,max=20"`
	BasePrice   decimal.Decimal `json:"base_price"`
}

// UpdateRequest edits product fields. Status changes go through SetStatus.
type UpdateRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Unit        *string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	BasePrice   *decimal.Decimal `json:"base_price,omitempty"`
}

// SetStatusRequest changes a product's lifecycle status.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive out_of_stock"`
}
