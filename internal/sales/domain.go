// Package sales provides quote and order entity logic, including the
// quote-to-order conversion that spans both aggregates.
package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// QuoteStatus represents the lifecycle of a quote.
type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusPending   QuoteStatus = "PENDING"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusRejected  QuoteStatus = "REJECTED"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
	QuoteStatusConverted QuoteStatus = "CONVERTED"
)

// IsValid checks if the status is a known quote status.
func (s QuoteStatus) IsValid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusPending, QuoteStatusAccepted,
		QuoteStatusRejected, QuoteStatusExpired, QuoteStatusConverted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s QuoteStatus) IsTerminal() bool {
	return s == QuoteStatusRejected || s == QuoteStatusExpired || s == QuoteStatusConverted
}

// CanUpdate checks if the quote header or items may still be edited.
func (s QuoteStatus) CanUpdate() bool {
	return s == QuoteStatusDraft || s == QuoteStatusPending
}

// CanDelete checks if the quote may be physically removed.
func (s QuoteStatus) CanDelete() bool {
	return s != QuoteStatusAccepted && s != QuoteStatusConverted
}

// Quote is a priced offer to a customer. total_amount is always the sum of
// its items' line totals, recomputed on every item mutation.
type Quote struct {
	ID               int64           `json:"id"`
	QuoteNumber      string          `json:"quote_number"`
	CompanyID        int64           `json:"company_id"`
	CustomerID       int64           `json:"customer_id"`
	Status           QuoteStatus     `json:"status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	ValidUntil       time.Time       `json:"valid_until"`
	Notes            *string         `json:"notes,omitempty"`
	RejectionReason  *string         `json:"rejection_reason,omitempty"`
	ConvertedOrderID *int64          `json:"converted_order_id,omitempty"`
	CreatedBy        int64           `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Items            []QuoteItem     `json:"items,omitempty"`
}

// QuoteItem is owned exclusively by its quote; quote_id never changes after
// creation. Updates replace the whole item set.
type QuoteItem struct {
	ID        int64           `json:"id"`
	QuoteID   int64           `json:"quote_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Notes     *string         `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// QuoteWithDetails includes joined data for listings.
type QuoteWithDetails struct {
	Quote
	CustomerName string `json:"customer_name"`
}

// OrderStatus represents the lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// IsValid checks if the status is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanCancel checks if the order may still be cancelled.
func (s OrderStatus) CanCancel() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderAction is one of the bulk-processable transitions.
type OrderAction string

const (
	OrderActionConfirm OrderAction = "confirm"
	OrderActionProcess OrderAction = "process"
	OrderActionShip    OrderAction = "ship"
	OrderActionDeliver OrderAction = "deliver"
	OrderActionCancel  OrderAction = "cancel"
)

// IsValid checks if the action is recognised.
func (a OrderAction) IsValid() bool {
	switch a {
	case OrderActionConfirm, OrderActionProcess, OrderActionShip,
		OrderActionDeliver, OrderActionCancel:
		return true
	default:
		return false
	}
}

// ApplyOrderAction returns the status an order moves to when the action is
// applied, or a Validation error when the transition is illegal.
func ApplyOrderAction(current OrderStatus, action OrderAction) (OrderStatus, error) {
	switch action {
	case OrderActionConfirm:
		if current == OrderStatusPending {
			return OrderStatusConfirmed, nil
		}
	case OrderActionProcess:
		if current == OrderStatusConfirmed {
			return OrderStatusProcessing, nil
		}
	case OrderActionShip:
		if current == OrderStatusProcessing {
			return OrderStatusShipped, nil
		}
	case OrderActionDeliver:
		if current == OrderStatusShipped {
			return OrderStatusDelivered, nil
		}
	case OrderActionCancel:
		if current.CanCancel() {
			return OrderStatusCancelled, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown action %q", shared.ErrValidation, action)
	}
	return "", fmt.Errorf("%w: cannot %s order in status %s", shared.ErrValidation, action, current)
}

// DeliveryAddress is stored as a JSONB column on orders.
type DeliveryAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is a confirmed purchase. Items are cascade-deleted with the order.
type Order struct {
	ID              int64            `json:"id"`
	OrderNumber     string           `json:"order_number"`
	CompanyID       int64            `json:"company_id"`
	CustomerID      int64            `json:"customer_id"`
	QuoteID         *int64           `json:"quote_id,omitempty"`
	Status          OrderStatus      `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	PaymentMethod   *string          `json:"payment_method,omitempty"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	DeliveryAddress *DeliveryAddress `json:"delivery_address,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	CancelReason    *string          `json:"cancel_reason,omitempty"`
	CreatedBy       int64            `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Items           []OrderItem      `json:"items,omitempty"`
}

// OrderItem is owned exclusively by its order.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OrderWithDetails includes joined data for listings.
type OrderWithDetails struct {
	Order
	CustomerName string `json:"customer_name"`
}

// ProductInfo is the slice of the product row the sales flows need for
// referential checks and price defaults.
type ProductInfo struct {
	ID        int64
	Name      string
	Status    string
	BasePrice decimal.Decimal
}

// BulkFailure reports why one order in a batch could not be processed.
type BulkFailure struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// BulkResult reports per-order outcomes of a bulk action. A bad id never
// aborts the batch.
type BulkResult struct {
	Processed []int64       `json:"processed"`
	Failed    []BulkFailure `json:"failed"`
}
