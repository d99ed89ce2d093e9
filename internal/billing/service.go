package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tienbob/Tubex-sub001/internal/observability"
	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// Service implements the invoice and payment lifecycles.
type Service struct {
	repo    Repository
	audit   *shared.AuditLogger
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService constructs a billing service.
func NewService(repo Repository, audit *shared.AuditLogger, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

func (s *Service) priceLines(items []InvoiceItemRequest) ([]InvoiceItem, decimal.Decimal, error) {
	lines := make([]InvoiceItem, 0, len(items))
	totals := make([]decimal.Decimal, 0, len(items))
	for _, it := range items {
		if it.Quantity.IsZero() {
			return nil, decimal.Zero, fmt.Errorf("%w: line %q has zero quantity", shared.ErrValidation, it.Description)
		}
		lt, err := shared.LineTotal(it.Quantity, it.UnitPrice, it.Discount, it.Tax)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lines = append(lines, InvoiceItem{
			ProductID:   it.ProductID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Tax:         it.Tax,
			LineTotal:   lt,
		})
		totals = append(totals, lt)
	}
	return lines, shared.SumLines(totals), nil
}

// CreateInvoice creates a draft invoice with its items atomically. The due
// date is derived from the payment term and issue date.
func (s *Service) CreateInvoice(ctx context.Context, actor shared.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot create invoices", shared.ErrForbidden)
	}
	if !req.PaymentTerm.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment term %q", shared.ErrValidation, req.PaymentTerm)
	}

	lines, total, err := s.priceLines(req.Items)
	if err != nil {
		return nil, err
	}

	issueDate := time.Now()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}
	dueDate, err := req.PaymentTerm.DueDate(issueDate)
	if err != nil {
		return nil, err
	}
	if req.DueDate != nil {
		if req.DueDate.Before(issueDate) {
			return nil, fmt.Errorf("%w: due date precedes issue date", shared.ErrValidation)
		}
		dueDate = *req.DueDate
	}

	id, err := s.persistInvoice(ctx, Invoice{
		CompanyID:   req.CompanyID,
		CustomerID:  req.CustomerID,
		Status:      InvoiceStatusDraft,
		PaymentTerm: req.PaymentTerm,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		TotalAmount: total,
		Notes:       req.Notes,
		CreatedBy:   actor.ID,
	}, lines)
	if err != nil {
		return nil, err
	}

	s.metrics.DocumentCreated("invoice")
	s.recordAudit(ctx, actor, "invoice.create", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// CreateFromOrder builds an invoice from a delivered or shipped order. The
// items and total are copied from the order; a partial unique index keeps at
// most one non-void invoice per order.
func (s *Service) CreateFromOrder(ctx context.Context, actor shared.Actor, req CreateFromOrderRequest) (*Invoice, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot create invoices", shared.ErrForbidden)
	}
	if !req.PaymentTerm.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment term %q", shared.ErrValidation, req.PaymentTerm)
	}

	order, err := s.repo.GetOrderSummary(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == "CANCELLED" {
		return nil, fmt.Errorf("%w: cancelled orders cannot be invoiced", shared.ErrValidation)
	}
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("%w: order %d has no items", shared.ErrValidation, req.OrderID)
	}

	issueDate := time.Now()
	dueDate, err := req.PaymentTerm.DueDate(issueDate)
	if err != nil {
		return nil, err
	}

	lines := make([]InvoiceItem, 0, len(order.Lines))
	for _, ol := range order.Lines {
		productID := ol.ProductID
		lt, err := shared.LineTotal(ol.Quantity, ol.UnitPrice, ol.Discount, decimal.Zero)
		if err != nil {
			return nil, err
		}
		lines = append(lines, InvoiceItem{
			ProductID:   &productID,
			Description: ol.ProductName,
			Quantity:    ol.Quantity,
			UnitPrice:   ol.UnitPrice,
			Discount:    ol.Discount,
			Tax:         decimal.Zero,
			LineTotal:   lt,
		})
	}

	id, err := s.persistInvoice(ctx, Invoice{
		CompanyID:   order.CompanyID,
		CustomerID:  order.CustomerID,
		OrderID:     &req.OrderID,
		Status:      InvoiceStatusDraft,
		PaymentTerm: req.PaymentTerm,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		TotalAmount: order.TotalAmount,
		Notes:       req.Notes,
		CreatedBy:   actor.ID,
	}, lines)
	if err != nil {
		return nil, err
	}

	s.metrics.DocumentCreated("invoice")
	s.recordAudit(ctx, actor, "invoice.create_from_order", id, map[string]any{"order_id": req.OrderID})
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) persistInvoice(ctx context.Context, inv Invoice, lines []InvoiceItem) (int64, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocNumber(ctx, shared.DocPrefixInvoice, inv.IssueDate)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		id, err = tx.CreateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		for _, line := range lines {
			line.InvoiceID = id
			if _, err := tx.InsertInvoiceItem(ctx, line); err != nil {
				return fmt.Errorf("insert invoice item: %w", err)
			}
		}
		return nil
	})
	return id, err
}

// GetInvoice returns an invoice with its items and payments.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns filtered invoices with pagination metadata.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]InvoiceWithDetails, int, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return s.repo.ListInvoices(ctx, req)
}

// UpdateInvoice edits invoice fields with role and status dependent rules:
// paid invoices are immutable, voided invoices accept admin note edits only,
// and term or due date changes need the admin role or the creator. Supplying
// items replaces the item set wholesale and recomputes the total; DRAFT only.
func (s *Service) UpdateInvoice(ctx context.Context, actor shared.Actor, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot edit invoices", shared.ErrForbidden)
	}

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	switch inv.Status {
	case InvoiceStatusPaid:
		return nil, fmt.Errorf("%w: paid invoices cannot be edited", shared.ErrValidation)
	case InvoiceStatusVoid:
		if req.PaymentTerm != nil || req.DueDate != nil || req.Items != nil {
			return nil, fmt.Errorf("%w: voided invoices accept note edits only", shared.ErrValidation)
		}
		if !actor.IsAdmin() {
			return nil, fmt.Errorf("%w: only admins can annotate voided invoices", shared.ErrForbidden)
		}
	}

	updates := map[string]interface{}{}
	if req.PaymentTerm != nil || req.DueDate != nil || req.Items != nil {
		if !actor.IsAdmin() && actor.ID != inv.CreatedBy {
			return nil, fmt.Errorf("%w: only the creator or an admin can change payment terms", shared.ErrForbidden)
		}
	}

	var lines []InvoiceItem
	if req.Items != nil {
		if inv.Status != InvoiceStatusDraft {
			return nil, fmt.Errorf("%w: items can only be replaced on DRAFT invoices", shared.ErrValidation)
		}
		var total decimal.Decimal
		lines, total, err = s.priceLines(req.Items)
		if err != nil {
			return nil, err
		}
		updates["total_amount"] = total
	}
	if req.PaymentTerm != nil {
		if !req.PaymentTerm.IsValid() {
			return nil, fmt.Errorf("%w: unknown payment term %q", shared.ErrValidation, *req.PaymentTerm)
		}
		dueDate, err := req.PaymentTerm.DueDate(inv.IssueDate)
		if err != nil {
			return nil, err
		}
		updates["payment_term"] = *req.PaymentTerm
		updates["due_date"] = dueDate
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return inv, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// items are replaced wholesale, never diffed
		if lines != nil {
			if err := tx.DeleteInvoiceItems(ctx, id); err != nil {
				return err
			}
			for _, line := range lines {
				line.InvoiceID = id
				if _, err := tx.InsertInvoiceItem(ctx, line); err != nil {
					return fmt.Errorf("insert invoice item: %w", err)
				}
			}
		}
		return tx.UpdateInvoice(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "invoice.update", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// SendInvoice moves a DRAFT invoice to SENT, opening it for payments.
func (s *Service) SendInvoice(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot send invoices", shared.ErrForbidden)
	}

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceStatusDraft {
		return nil, fmt.Errorf("%w: only DRAFT invoices can be sent, got %s", shared.ErrValidation, inv.Status)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusSent, nil)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "invoice.send", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// MarkViewed records that the customer has opened a SENT invoice. Calling it
// again once viewed is a no-op.
func (s *Service) MarkViewed(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleCustomer && inv.CustomerID != actor.ID {
		return nil, fmt.Errorf("%w: invoice belongs to another customer", shared.ErrForbidden)
	}
	if inv.Status != InvoiceStatusSent {
		if inv.Status == InvoiceStatusViewed || inv.Status == InvoiceStatusPartiallyPaid {
			return inv, nil
		}
		return nil, fmt.Errorf("%w: only SENT invoices can be marked viewed, got %s", shared.ErrValidation, inv.Status)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusViewed, nil)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "invoice.viewed", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// RecordPayment records a payment and rederives paid_amount and status inside
// one transaction. The invoice row is locked so concurrent recordings cannot
// overshoot the total.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, invoiceID int64, req RecordPaymentRequest) (*Invoice, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}

	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if actor.Role == shared.RoleCustomer && inv.CustomerID != actor.ID {
			return fmt.Errorf("%w: invoice belongs to another customer", shared.ErrForbidden)
		}
		if !inv.Status.CanRecordPayment() {
			return fmt.Errorf("%w: invoice in status %s does not accept payments", shared.ErrValidation, inv.Status)
		}
		if inv.PaidAmount.Add(req.Amount).GreaterThan(inv.TotalAmount) {
			return fmt.Errorf("%w: payment of %s exceeds outstanding balance %s",
				shared.ErrValidation, req.Amount, inv.Balance())
		}

		number, err := tx.NextDocNumber(ctx, shared.DocPrefixPayment, paidAt)
		if err != nil {
			return fmt.Errorf("payment number: %w", err)
		}
		if _, err := tx.InsertPayment(ctx, Payment{
			PaymentNumber:        number,
			InvoiceID:            invoiceID,
			TransactionID:        uuid.NewString(),
			Amount:               req.Amount,
			Method:               req.Method,
			PaidAt:               paidAt,
			ReconciliationStatus: ReconUnreconciled,
			Notes:                req.Notes,
			RecordedBy:           actor.ID,
		}); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		paid, err := tx.SumPayments(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}
		status := InvoiceStatusPartiallyPaid
		if paid.GreaterThanOrEqual(inv.TotalAmount) {
			status = InvoiceStatusPaid
		}
		return tx.SetPaidAmount(ctx, invoiceID, paid, status)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DocumentCreated("payment")
	s.recordAudit(ctx, actor, "invoice.payment", invoiceID, map[string]any{"amount": req.Amount.String()})
	return s.repo.GetInvoice(ctx, invoiceID)
}

// ListPayments returns the payments recorded against an invoice. Customers
// see payments on their own invoices only.
func (s *Service) ListPayments(ctx context.Context, actor shared.Actor, invoiceID int64) ([]Payment, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleCustomer && inv.CustomerID != actor.ID {
		return nil, fmt.Errorf("%w: invoice belongs to another customer", shared.ErrForbidden)
	}
	return inv.Payments, nil
}

// UpdatePaymentReconciliation sets the reconciliation status of a single
// payment. Staff only, this is a back-office bookkeeping action.
func (s *Service) UpdatePaymentReconciliation(ctx context.Context, actor shared.Actor, invoiceID, paymentID int64, req UpdateReconciliationRequest) (*Invoice, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot reconcile payments", shared.ErrForbidden)
	}
	if !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown reconciliation status %q", shared.ErrValidation, req.Status)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePaymentReconciliation(ctx, invoiceID, paymentID, req.Status)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "invoice.payment_reconciliation", invoiceID,
		map[string]any{"payment_id": paymentID, "status": string(req.Status)})
	return s.repo.GetInvoice(ctx, invoiceID)
}

// VoidInvoice soft-voids an invoice. Admin only; paid invoices cannot be
// voided, the money has already moved.
func (s *Service) VoidInvoice(ctx context.Context, actor shared.Actor, id int64, req VoidInvoiceRequest) (*Invoice, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can void invoices", shared.ErrForbidden)
	}

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanVoid() {
		return nil, fmt.Errorf("%w: invoice in status %s cannot be voided", shared.ErrValidation, inv.Status)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusVoid, &req.Reason)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "invoice.void", id, map[string]any{"reason": req.Reason})
	return s.repo.GetInvoice(ctx, id)
}

// Aging builds the receivables aging report for a company.
func (s *Service) Aging(ctx context.Context, companyID int64, asOf time.Time) (*AgingReport, error) {
	invoices, err := s.repo.ListOpenInvoices(ctx, companyID)
	if err != nil {
		return nil, err
	}
	report := BuildAgingReport(companyID, asOf, invoices)
	return &report, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record", "action", action, "error", err)
	}
}
