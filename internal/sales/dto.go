package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemRequest is a line item in create/update requests. Quantity, unit price
// and discount ranges are enforced by the line calculator, not struct tags,
// because decimals carry no validator support.
type ItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Notes     *string         `json:"notes,omitempty"`
}

// CreateQuoteRequest creates a quote with its items in one transaction.
type CreateQuoteRequest struct {
	CompanyID  int64         `json:"company_id" validate:"required,gt=0"`
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	ValidUntil *time.Time    `json:"valid_until,omitempty"`
	Notes      *string       `json:"notes,omitempty"`
	Items      []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateQuoteRequest edits a non-terminal quote. When Items is present the
// existing items are deleted and replaced wholesale.
type UpdateQuoteRequest struct {
	ValidUntil *time.Time     `json:"valid_until,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
	Items      *[]ItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// RejectQuoteRequest rejects a pending quote.
type RejectQuoteRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ListQuotesRequest filters quote listings.
type ListQuotesRequest struct {
	CompanyID  int64        `json:"company_id" validate:"required,gt=0"`
	CustomerID *int64       `json:"customer_id,omitempty"`
	Status     *QuoteStatus `json:"status,omitempty"`
	DateFrom   *time.Time   `json:"date_from,omitempty"`
	DateTo     *time.Time   `json:"date_to,omitempty"`
	Limit      int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int          `json:"offset" validate:"gte=0"`
}

// ConvertQuoteRequest carries the order details not present on the quote.
type ConvertQuoteRequest struct {
	PaymentMethod   *string          `json:"payment_method,omitempty" validate:"omitempty,max=50"`
	DeliveryAddress *DeliveryAddress `json:"delivery_address,omitempty"`
}

// CreateOrderRequest creates an order with its items in one transaction.
type CreateOrderRequest struct {
	CompanyID       int64            `json:"company_id" validate:"required,gt=0"`
	CustomerID      int64            `json:"customer_id" validate:"required,gt=0"`
	PaymentMethod   *string          `json:"payment_method,omitempty" validate:"omitempty,max=50"`
	DeliveryAddress *DeliveryAddress `json:"delivery_address,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	Items           []ItemRequest    `json:"items" validate:"required,min=1,dive"`
}

// CancelOrderRequest cancels a single order; a reason is mandatory.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// BulkProcessRequest applies one action to each order independently.
// Reason is only consulted for the cancel action.
type BulkProcessRequest struct {
	OrderIDs []int64     `json:"order_ids" validate:"required,min=1,max=100"`
	Action   OrderAction `json:"action" validate:"required"`
	Reason   *string     `json:"reason,omitempty" validate:"omitempty,min=3,max=500"`
}

// ListOrdersRequest filters order listings.
type ListOrdersRequest struct {
	CompanyID     int64          `json:"company_id" validate:"required,gt=0"`
	CustomerID    *int64         `json:"customer_id,omitempty"`
	Status        *OrderStatus   `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
	DateFrom      *time.Time     `json:"date_from,omitempty"`
	DateTo        *time.Time     `json:"date_to,omitempty"`
	Limit         int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset        int            `json:"offset" validate:"gte=0"`
}
