package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceItemRequest is a line item in invoice creation. Amount ranges are
// enforced by the line calculator.
type InvoiceItemRequest struct {
	ProductID   *int64          `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
}

// CreateInvoiceRequest creates a standalone invoice.
type CreateInvoiceRequest struct {
	CompanyID   int64                `json:"company_id" validate:"required,gt=0"`
	CustomerID  int64                `json:"customer_id" validate:"required,gt=0"`
	PaymentTerm PaymentTerm          `json:"payment_term" validate:"required"`
	IssueDate   *time.Time           `json:"issue_date,omitempty"`
	DueDate     *time.Time           `json:"due_date,omitempty"`
	Notes       *string              `json:"notes,omitempty"`
	Items       []InvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateFromOrderRequest creates an invoice from an order's items.
type CreateFromOrderRequest struct {
	OrderID     int64       `json:"order_id" validate:"required,gt=0"`
	PaymentTerm PaymentTerm `json:"payment_term" validate:"required"`
	Notes       *string     `json:"notes,omitempty"`
}

// UpdateInvoiceRequest edits invoice fields. Which fields an actor may touch
// depends on their role and the invoice status. Supplying Items replaces the
// item set wholesale; allowed on DRAFT invoices only.
type UpdateInvoiceRequest struct {
	PaymentTerm *PaymentTerm         `json:"payment_term,omitempty"`
	DueDate     *time.Time           `json:"due_date,omitempty"`
	Notes       *string              `json:"notes,omitempty"`
	Items       []InvoiceItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// RecordPaymentRequest records a payment against an invoice.
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,max=50"`
	PaidAt *time.Time      `json:"paid_at,omitempty"`
	Notes  *string         `json:"notes,omitempty"`
}

// UpdateReconciliationRequest changes a payment's reconciliation status.
type UpdateReconciliationRequest struct {
	Status ReconciliationStatus `json:"status" validate:"required"`
}

// VoidInvoiceRequest voids an invoice; admin only.
type VoidInvoiceRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	CompanyID  int64          `json:"company_id" validate:"required,gt=0"`
	CustomerID *int64         `json:"customer_id,omitempty"`
	Status     *InvoiceStatus `json:"status,omitempty"`
	Overdue    bool           `json:"overdue,omitempty"`
	DateFrom   *time.Time     `json:"date_from,omitempty"`
	DateTo     *time.Time     `json:"date_to,omitempty"`
	Limit      int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int            `json:"offset" validate:"gte=0"`
}
