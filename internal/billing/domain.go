// Package billing implements invoices and payment recording.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// InvoiceStatus represents the lifecycle of an invoice. Payment statuses are
// derived from recorded payments, never set directly.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusSent          InvoiceStatus = "SENT"
	InvoiceStatusViewed        InvoiceStatus = "VIEWED"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
)

// IsValid reports whether s is a known invoice status.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	default:
		return false
	}
}

// CanVoid reports whether the invoice can still be voided. Paid invoices
// may be voided too; only voiding twice is refused.
func (s InvoiceStatus) CanVoid() bool {
	return s != InvoiceStatusVoid
}

// CanRecordPayment reports whether payments can be recorded against the
// invoice. Draft invoices must be sent first.
func (s InvoiceStatus) CanRecordPayment() bool {
	switch s {
	case InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartiallyPaid:
		return true
	default:
		return false
	}
}

// PaymentTerm determines the due date offset from the issue date.
type PaymentTerm string

const (
	TermImmediate PaymentTerm = "immediate"
	TermNet7      PaymentTerm = "net7"
	TermNet15     PaymentTerm = "net15"
	TermNet30     PaymentTerm = "net30"
	TermNet45     PaymentTerm = "net45"
	TermNet60     PaymentTerm = "net60"
	TermNet90     PaymentTerm = "net90"
)

var termDays = map[PaymentTerm]int{
	TermImmediate: 0,
	TermNet7:      7,
	TermNet15:     15,
	TermNet30:     30,
	TermNet45:     45,
	TermNet60:     60,
	TermNet90:     90,
}

// IsValid reports whether t is a known payment term.
func (t PaymentTerm) IsValid() bool {
	_, ok := termDays[t]
	return ok
}

// DueDate returns the due date for an invoice issued on the given date.
func (t PaymentTerm) DueDate(issued time.Time) (time.Time, error) {
	days, ok := termDays[t]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown payment term %q", shared.ErrValidation, t)
	}
	return issued.AddDate(0, 0, days), nil
}

// ReconciliationStatus tracks whether a payment has been matched against a
// bank statement.
type ReconciliationStatus string

const (
	ReconUnreconciled  ReconciliationStatus = "unreconciled"
	ReconReconciled    ReconciliationStatus = "reconciled"
	ReconDisputed      ReconciliationStatus = "disputed"
	ReconPendingReview ReconciliationStatus = "pending_review"
)

// IsValid reports whether the status is one of the known values.
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconUnreconciled, ReconReconciled, ReconDisputed, ReconPendingReview:
		return true
	}
	return false
}

// Invoice is a bill issued to a customer. PaidAmount is always recomputed
// from the payments table inside the recording transaction.
type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CompanyID     int64           `json:"company_id"`
	CustomerID    int64           `json:"customer_id"`
	OrderID       *int64          `json:"order_id,omitempty"`
	Status        InvoiceStatus   `json:"status"`
	PaymentTerm   PaymentTerm     `json:"payment_term"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Notes         *string         `json:"notes,omitempty"`
	VoidReason    *string         `json:"void_reason,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []InvoiceItem   `json:"items,omitempty"`
	Payments      []Payment       `json:"payments,omitempty"`
}

// Balance returns the outstanding amount.
func (i *Invoice) Balance() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// IsOverdue reports whether the invoice is unpaid past its due date.
func (i *Invoice) IsOverdue(asOf time.Time) bool {
	return i.Status != InvoiceStatusPaid && i.Status != InvoiceStatusVoid && asOf.After(i.DueDate)
}

// InvoiceItem is a line on an invoice. Unlike quote and order lines, invoice
// lines carry an absolute tax amount. ProductID is nil for free-form lines
// such as delivery fees.
type InvoiceItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductID   *int64          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Payment is a first-class record of money received against an invoice.
type Payment struct {
	ID                   int64                `json:"id"`
	PaymentNumber        string               `json:"payment_number"`
	InvoiceID            int64                `json:"invoice_id"`
	TransactionID        string               `json:"transaction_id"`
	Amount               decimal.Decimal      `json:"amount"`
	Method               string               `json:"method"`
	PaidAt               time.Time            `json:"paid_at"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status"`
	Notes                *string              `json:"notes,omitempty"`
	RecordedBy           int64                `json:"recorded_by"`
	CreatedAt            time.Time            `json:"created_at"`
}

// InvoiceWithDetails includes joined data for listings.
type InvoiceWithDetails struct {
	Invoice
	CustomerName string `json:"customer_name"`
}

// AgingBucket is one bucket of the receivables aging report.
type AgingBucket struct {
	Label  string          `json:"label"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AgingReport groups outstanding invoice balances by days overdue.
type AgingReport struct {
	CompanyID        int64           `json:"company_id"`
	AsOf             time.Time       `json:"as_of"`
	Buckets          []AgingBucket   `json:"buckets"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

// BuildAgingReport distributes open invoices into the standard buckets:
// current, 1-30, 31-60, 61-90 and over 90 days overdue.
func BuildAgingReport(companyID int64, asOf time.Time, invoices []Invoice) AgingReport {
	buckets := []AgingBucket{
		{Label: "current", Amount: decimal.Zero},
		{Label: "1-30", Amount: decimal.Zero},
		{Label: "31-60", Amount: decimal.Zero},
		{Label: "61-90", Amount: decimal.Zero},
		{Label: "over_90", Amount: decimal.Zero},
	}
	total := decimal.Zero

	for _, inv := range invoices {
		balance := inv.Balance()
		if balance.LessThanOrEqual(decimal.Zero) {
			continue
		}
		overdue := int(asOf.Sub(inv.DueDate).Hours() / 24)
		idx := 0
		switch {
		case overdue <= 0:
			idx = 0
		case overdue <= 30:
			idx = 1
		case overdue <= 60:
			idx = 2
		case overdue <= 90:
			idx = 3
		default:
			idx = 4
		}
		buckets[idx].Count++
		buckets[idx].Amount = buckets[idx].Amount.Add(balance)
		total = total.Add(balance)
	}

	return AgingReport{CompanyID: companyID, AsOf: asOf, Buckets: buckets, TotalOutstanding: total}
}
