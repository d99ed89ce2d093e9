// Package pricing implements the unified product pricing model, the legacy
// price list tables and the migration between them.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricingType categorizes a unified pricing entry.
type PricingType string

const (
	TypeBase      PricingType = "BASE"
	TypeWholesale PricingType = "WHOLESALE"
	TypeRetail    PricingType = "RETAIL"
	TypePremium   PricingType = "PREMIUM"
	TypeDealer    PricingType = "DEALER"
	TypeBulk      PricingType = "BULK"
	TypePromo     PricingType = "PROMO"
)

// IsValid reports whether t is a known pricing type.
func (t PricingType) IsValid() bool {
	switch t {
	case TypeBase, TypeWholesale, TypeRetail, TypePremium, TypeDealer, TypeBulk, TypePromo:
		return true
	default:
		return false
	}
}

// InferPricingType maps a legacy price list name onto a pricing type by
// substring. Names that match nothing become BASE.
func InferPricingType(listName string) PricingType {
	name := strings.ToLower(listName)
	for _, c := range []struct {
		substr string
		t      PricingType
	}{
		{"wholesale", TypeWholesale},
		{"retail", TypeRetail},
		{"premium", TypePremium},
		{"dealer", TypeDealer},
		{"bulk", TypeBulk},
		{"promo", TypePromo},
	} {
		if strings.Contains(name, c.substr) {
			return c.t
		}
	}
	return TypeBase
}

// PriceList is a legacy named collection of product prices. At most one list
// per company is the default; the exclusivity is enforced under a row lock.
type PriceList struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	Status    string    `json:"status"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []PriceListItem `json:"items,omitempty"`
}

// PriceListItem prices one product on one list, optionally bounded by an
// effective window. A unique constraint keeps one row per
// (price_list_id, product_id).
type PriceListItem struct {
	ID            int64           `json:"id"`
	PriceListID   int64           `json:"price_list_id"`
	ProductID     int64           `json:"product_id"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InWindow reports whether the item is effective at the given instant. Items
// without bounds are always effective.
func (i *PriceListItem) InWindow(at time.Time) bool {
	if i.EffectiveFrom != nil && at.Before(*i.EffectiveFrom) {
		return false
	}
	if i.EffectiveTo != nil && at.After(*i.EffectiveTo) {
		return false
	}
	return true
}

// ProductPricing is the unified pricing entry that supersedes price lists.
// Metadata keeps migration provenance.
type ProductPricing struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	ProductID     int64           `json:"product_id"`
	PricingType   PricingType     `json:"pricing_type"`
	Price         decimal.Decimal `json:"price"`
	MinQuantity   decimal.Decimal `json:"min_quantity"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	IsActive      bool            `json:"is_active"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InWindow reports whether the entry is effective at the given instant.
func (p *ProductPricing) InWindow(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && at.After(*p.EffectiveTo) {
		return false
	}
	return true
}

// ListPriceChange is one row of the legacy price list audit trail. Every
// price list item create or update writes one in the same transaction.
type ListPriceChange struct {
	ID          int64            `json:"id"`
	PriceListID int64            `json:"price_list_id"`
	ProductID   int64            `json:"product_id"`
	OldPrice    *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice    decimal.Decimal  `json:"new_price"`
	Reason      string           `json:"reason,omitempty"`
	ChangedBy   int64            `json:"changed_by"`
	ChangedAt   time.Time        `json:"changed_at"`
}

// HistoryAction classifies a unified pricing audit event.
type HistoryAction string

const (
	ActionCreated     HistoryAction = "CREATED"
	ActionUpdated     HistoryAction = "UPDATED"
	ActionDeleted     HistoryAction = "DELETED"
	ActionActivated   HistoryAction = "ACTIVATED"
	ActionDeactivated HistoryAction = "DEACTIVATED"
)

// PricingEvent is one row of the append-only unified pricing audit trail.
type PricingEvent struct {
	ID        int64            `json:"id"`
	PricingID int64            `json:"pricing_id"`
	CompanyID int64            `json:"company_id"`
	ProductID int64            `json:"product_id"`
	Action    HistoryAction    `json:"action"`
	OldPrice  *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice  *decimal.Decimal `json:"new_price,omitempty"`
	ChangedBy int64            `json:"changed_by"`
	ChangedAt time.Time        `json:"changed_at"`
}

// PriceHistory combines both audit trails for one product within a company.
type PriceHistory struct {
	ListChanges   []ListPriceChange `json:"price_list_history"`
	PricingEvents []PricingEvent    `json:"pricing_history"`
}

// ResolvedPrice is the outcome of effective price resolution, including
// which layer supplied it.
type ResolvedPrice struct {
	ProductID int64           `json:"product_id"`
	CompanyID int64           `json:"company_id"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
}

// Resolution sources, in precedence order.
const (
	ResolvedFromPricing   = "product_pricing"
	ResolvedFromPriceList = "price_list"
	ResolvedFromBasePrice = "base_price"
)

// MigrationReport summarizes one dual-to-unified migration run.
type MigrationReport struct {
	BatchID      string    `json:"batch_id"`
	CompanyID    int64     `json:"company_id"`
	SourceItems  int       `json:"source_items"`
	MigratedRows int       `json:"migrated_rows"`
	SkippedLists int       `json:"skipped_lists"`
	CompletedAt  time.Time `json:"completed_at"`
}
