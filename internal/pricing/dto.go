package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePriceListRequest creates a legacy price list.
type CreatePriceListRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required,min=2,max=200"`
	IsDefault bool   `json:"is_default"`
}

// UpdatePriceListRequest renames a list or flips its default flag.
type UpdatePriceListRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

// UpsertPriceListItemRequest sets a product's price on a list, optionally
// bounded by an effective window and annotated with a change reason.
type UpsertPriceListItemRequest struct {
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Reason        string          `json:"reason,omitempty" validate:"max=500"`
}

// CreatePricingRequest creates a unified pricing entry.
type CreatePricingRequest struct {
	CompanyID     int64           `json:"company_id" validate:"required,gt=0"`
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	PricingType   PricingType     `json:"pricing_type" validate:"required"`
	Price         decimal.Decimal `json:"price"`
	MinQuantity   decimal.Decimal `json:"min_quantity"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
}

// UpdatePricingRequest changes price or window of an entry.
type UpdatePricingRequest struct {
	Price       *decimal.Decimal `json:"price,omitempty"`
	EffectiveTo *time.Time       `json:"effective_to,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// MigrateRequest runs the dual-to-unified migration for one company.
type MigrateRequest struct {
	CompanyID int64 `json:"company_id" validate:"required,gt=0"`
	// DryRun reports what would migrate without writing anything.
	DryRun bool `json:"dry_run"`
}

// RollbackRequest removes all rows created by one migration batch.
type RollbackRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	BatchID   string `json:"batch_id" validate:"required,uuid"`
}

// ListPricingRequest filters unified pricing listings.
type ListPricingRequest struct {
	CompanyID   int64        `json:"company_id" validate:"required,gt=0"`
	ProductID   *int64       `json:"product_id,omitempty"`
	PricingType *PricingType `json:"pricing_type,omitempty"`
	ActiveOnly  bool         `json:"active_only"`
	Limit       int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int          `json:"offset" validate:"gte=0"`
}
