package companies

import "time"

// Company types. Dealers buy, suppliers sell; a company can be both.
const (
	TypeDealer   = "dealer"
	TypeSupplier = "supplier"
)

// Company statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Company represents a trading party on the platform.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	TaxCode   *string   `json:"tax_code,omitempty"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
