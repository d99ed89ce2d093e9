package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

type mockRepo struct {
	invoices map[int64]*Invoice
	orders   map[int64]*OrderSummary
	nextID   int64
	seq      int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		invoices: map[int64]*Invoice{},
		orders:   map[int64]*OrderSummary{},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (m *mockRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepo) snapshot() (map[int64]*Invoice, int64, int64) {
	invoices := make(map[int64]*Invoice, len(m.invoices))
	for k, v := range m.invoices {
		inv := *v
		inv.Items = append([]InvoiceItem(nil), v.Items...)
		inv.Payments = append([]Payment(nil), v.Payments...)
		invoices[k] = &inv
	}
	return invoices, m.nextID, m.seq
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	invoices, nextID, seq := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.invoices, m.nextID, m.seq = invoices, nextID, seq
		return err
	}
	return nil
}

func (m *mockRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *inv
	cp.Items = append([]InvoiceItem(nil), inv.Items...)
	cp.Payments = append([]Payment(nil), inv.Payments...)
	return &cp, nil
}

func (m *mockRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return m.GetInvoice(ctx, id)
}

func (m *mockRepo) ListInvoices(_ context.Context, req ListInvoicesRequest) ([]InvoiceWithDetails, int, error) {
	var out []InvoiceWithDetails
	for _, inv := range m.invoices {
		if inv.CompanyID != req.CompanyID {
			continue
		}
		out = append(out, InvoiceWithDetails{Invoice: *inv})
	}
	return out, len(out), nil
}

func (m *mockRepo) ListOpenInvoices(_ context.Context, companyID int64) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.CompanyID != companyID {
			continue
		}
		switch inv.Status {
		case InvoiceStatusDraft, InvoiceStatusPaid, InvoiceStatusVoid:
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (m *mockRepo) GetOrderSummary(_ context.Context, orderID int64) (*OrderSummary, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (m *mockRepo) CreateInvoice(_ context.Context, inv Invoice) (int64, error) {
	if inv.OrderID != nil {
		for _, existing := range m.invoices {
			if existing.OrderID != nil && *existing.OrderID == *inv.OrderID && existing.Status != InvoiceStatusVoid {
				return 0, shared.ErrConflict
			}
		}
	}
	inv.ID = m.id()
	inv.PaidAmount = decimal.Zero
	inv.CreatedAt = time.Now()
	m.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (m *mockRepo) InsertInvoiceItem(_ context.Context, item InvoiceItem) (int64, error) {
	inv, ok := m.invoices[item.InvoiceID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	item.ID = m.id()
	inv.Items = append(inv.Items, item)
	return item.ID, nil
}

func (m *mockRepo) DeleteInvoiceItems(_ context.Context, invoiceID int64) error {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Items = nil
	return nil
}

func (m *mockRepo) UpdateInvoice(_ context.Context, id int64, updates map[string]interface{}) error {
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	if v, ok := updates["payment_term"]; ok {
		inv.PaymentTerm = v.(PaymentTerm)
	}
	if v, ok := updates["due_date"]; ok {
		inv.DueDate = v.(time.Time)
	}
	if v, ok := updates["notes"]; ok {
		notes := v.(string)
		inv.Notes = &notes
	}
	if v, ok := updates["total_amount"]; ok {
		inv.TotalAmount = v.(decimal.Decimal)
	}
	return nil
}

func (m *mockRepo) UpdateInvoiceStatus(_ context.Context, id int64, status InvoiceStatus, voidReason *string) error {
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Status = status
	if voidReason != nil {
		inv.VoidReason = voidReason
	}
	return nil
}

func (m *mockRepo) InsertPayment(_ context.Context, p Payment) (int64, error) {
	inv, ok := m.invoices[p.InvoiceID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	p.ID = m.id()
	inv.Payments = append(inv.Payments, p)
	return p.ID, nil
}

func (m *mockRepo) UpdatePaymentReconciliation(_ context.Context, invoiceID, paymentID int64, status ReconciliationStatus) error {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return shared.ErrNotFound
	}
	for i := range inv.Payments {
		if inv.Payments[i].ID == paymentID {
			inv.Payments[i].ReconciliationStatus = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepo) SumPayments(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return decimal.Zero, shared.ErrNotFound
	}
	sum := decimal.Zero
	for _, p := range inv.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

func (m *mockRepo) SetPaidAmount(_ context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error {
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.PaidAmount = paid
	inv.Status = status
	return nil
}

func (m *mockRepo) NextDocNumber(_ context.Context, prefix string, date time.Time) (string, error) {
	m.seq++
	return shared.FormatDocNumber(prefix, date, m.seq), nil
}

func newTestService(repo *mockRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, nil, logger)
}

var (
	staff = shared.Actor{ID: 7, Role: shared.RoleStaff}
	admin = shared.Actor{ID: 1, Role: shared.RoleAdmin}
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPaymentTermDueDate(t *testing.T) {
	issued := date("2025-01-01")
	cases := []struct {
		term PaymentTerm
		want string
	}{
		{TermImmediate, "2025-01-01"},
		{TermNet7, "2025-01-08"},
		{TermNet15, "2025-01-16"},
		{TermNet30, "2025-01-31"},
		{TermNet45, "2025-02-15"},
		{TermNet60, "2025-03-02"},
		{TermNet90, "2025-04-01"},
	}
	for _, tc := range cases {
		due, err := tc.term.DueDate(issued)
		require.NoError(t, err)
		assert.Equal(t, tc.want, due.Format("2006-01-02"), "term %s", tc.term)
	}

	_, err := PaymentTerm("net120").DueDate(issued)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateInvoiceComputesTotalWithTax(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	issue := date("2025-01-01")
	inv, err := svc.CreateInvoice(context.Background(), staff, CreateInvoiceRequest{
		CompanyID:   1,
		CustomerID:  10,
		PaymentTerm: TermNet30,
		IssueDate:   &issue,
		Items: []InvoiceItemRequest{
			{Description: "Steel Pipe 21mm", Quantity: dec("10"), UnitPrice: dec("150000"), Discount: dec("50000"), Tax: dec("145000")},
			{Description: "Delivery fee", Quantity: dec("1"), UnitPrice: dec("200000"), Tax: dec("20000")},
		},
	})
	require.NoError(t, err)

	// (10*150000 - 50000 + 145000) + (200000 + 20000) = 1595000 + 220000
	assert.True(t, inv.TotalAmount.Equal(dec("1815000")), "got %s", inv.TotalAmount)
	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "2025-01-31", inv.DueDate.Format("2006-01-02"))
	assert.Regexp(t, `^INV-\d{6}-\d{4}$`, inv.InvoiceNumber)
	require.Len(t, inv.Items, 2)
	assert.True(t, inv.Items[0].LineTotal.Equal(dec("1595000")))
}

func TestCreateInvoiceDueDateOverride(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	issue := date("2025-01-01")
	due := date("2025-02-15")
	inv, err := svc.CreateInvoice(context.Background(), staff, CreateInvoiceRequest{
		CompanyID:   1,
		CustomerID:  10,
		PaymentTerm: TermNet30,
		IssueDate:   &issue,
		DueDate:     &due,
		Items: []InvoiceItemRequest{
			{Description: "Cement bag 50kg", Quantity: dec("5"), UnitPrice: dec("90000")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-02-15", inv.DueDate.Format("2006-01-02"))

	early := date("2024-12-31")
	_, err = svc.CreateInvoice(context.Background(), staff, CreateInvoiceRequest{
		CompanyID:   1,
		CustomerID:  10,
		PaymentTerm: TermNet30,
		IssueDate:   &issue,
		DueDate:     &early,
		Items: []InvoiceItemRequest{
			{Description: "Cement bag 50kg", Quantity: dec("5"), UnitPrice: dec("90000")},
		},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func seedInvoice(repo *mockRepo, status InvoiceStatus, total decimal.Decimal) *Invoice {
	id := repo.id()
	inv := &Invoice{
		ID:            id,
		InvoiceNumber: "INV-250101-0001",
		CompanyID:     1,
		CustomerID:    10,
		Status:        status,
		PaymentTerm:   TermNet30,
		IssueDate:     date("2025-01-01"),
		DueDate:       date("2025-01-31"),
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		CreatedBy:     7,
	}
	repo.invoices[id] = inv
	return inv
}

func TestRecordPaymentLifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusSent, dec("100"))

	inv, err := svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
		Amount: dec("60"), Method: "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.True(t, inv.PaidAmount.Equal(dec("60")))
	assert.True(t, inv.Balance().Equal(dec("40")))

	inv, err = svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
		Amount: dec("40"), Method: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.PaidAmount.Equal(dec("100")))
	require.Len(t, inv.Payments, 2)
	assert.NotEmpty(t, inv.Payments[0].TransactionID)
	assert.NotEqual(t, inv.Payments[0].TransactionID, inv.Payments[1].TransactionID)
	assert.Equal(t, ReconUnreconciled, inv.Payments[0].ReconciliationStatus)

	// a settled invoice accepts no further payments
	_, err = svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
		Amount: dec("1"), Method: "cash",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusSent, dec("100"))

	_, err := svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
		Amount: dec("100.01"), Method: "cash",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	inv, err := svc.GetInvoice(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Empty(t, inv.Payments, "no payment row may survive the rollback")
	assert.True(t, inv.PaidAmount.IsZero())
}

func TestRecordPaymentInvalidAmounts(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusSent, dec("100"))

	for _, amount := range []string{"0", "-10"} {
		_, err := svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
			Amount: dec(amount), Method: "cash",
		})
		assert.ErrorIs(t, err, shared.ErrValidation, "amount %s", amount)
	}
}

func TestRecordPaymentStatusGate(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	for _, status := range []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusVoid} {
		seeded := seedInvoice(repo, status, dec("100"))
		_, err := svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
			Amount: dec("50"), Method: "cash",
		})
		assert.ErrorIs(t, err, shared.ErrValidation, "status %s", status)
	}
}

func TestRecordPaymentOwnership(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusSent, dec("100"))

	stranger := shared.Actor{ID: 99, Role: shared.RoleCustomer}
	_, err := svc.RecordPayment(context.Background(), stranger, seeded.ID, RecordPaymentRequest{
		Amount: dec("50"), Method: "cash",
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	owner := shared.Actor{ID: 10, Role: shared.RoleCustomer}
	inv, err := svc.RecordPayment(context.Background(), owner, seeded.ID, RecordPaymentRequest{
		Amount: dec("50"), Method: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
}

func TestListPaymentsOwnership(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusSent, dec("100"))

	_, err := svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
		Amount: dec("60"), Method: "bank_transfer",
	})
	require.NoError(t, err)

	stranger := shared.Actor{ID: 99, Role: shared.RoleCustomer}
	_, err = svc.ListPayments(context.Background(), stranger, seeded.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	owner := shared.Actor{ID: 10, Role: shared.RoleCustomer}
	payments, err := svc.ListPayments(context.Background(), owner, seeded.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Regexp(t, `^PAY-\d{6}-\d{4}$`, payments[0].PaymentNumber)
}

func TestUpdatePaymentReconciliation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusSent, dec("100"))

	_, err := svc.RecordPayment(context.Background(), staff, seeded.ID, RecordPaymentRequest{
		Amount: dec("100"), Method: "bank_transfer",
	})
	require.NoError(t, err)
	inv, err := svc.GetInvoice(context.Background(), seeded.ID)
	require.NoError(t, err)
	paymentID := inv.Payments[0].ID

	owner := shared.Actor{ID: 10, Role: shared.RoleCustomer}
	_, err = svc.UpdatePaymentReconciliation(context.Background(), owner, seeded.ID, paymentID,
		UpdateReconciliationRequest{Status: ReconReconciled})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.UpdatePaymentReconciliation(context.Background(), staff, seeded.ID, paymentID,
		UpdateReconciliationRequest{Status: "settled"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	for _, status := range []ReconciliationStatus{ReconPendingReview, ReconDisputed, ReconReconciled} {
		inv, err = svc.UpdatePaymentReconciliation(context.Background(), staff, seeded.ID, paymentID,
			UpdateReconciliationRequest{Status: status})
		require.NoError(t, err)
		assert.Equal(t, status, inv.Payments[0].ReconciliationStatus)
	}

	_, err = svc.UpdatePaymentReconciliation(context.Background(), staff, seeded.ID, paymentID+100,
		UpdateReconciliationRequest{Status: ReconReconciled})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSendAndMarkViewed(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	seeded := seedInvoice(repo, InvoiceStatusDraft, dec("100"))

	inv, err := svc.SendInvoice(context.Background(), staff, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusSent, inv.Status)

	_, err = svc.SendInvoice(context.Background(), staff, seeded.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	owner := shared.Actor{ID: 10, Role: shared.RoleCustomer}
	inv, err = svc.MarkViewed(context.Background(), owner, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusViewed, inv.Status)

	// repeat view is a no-op
	inv, err = svc.MarkViewed(context.Background(), owner, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusViewed, inv.Status)
}

func TestVoidInvoiceRules(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	sent := seedInvoice(repo, InvoiceStatusSent, dec("100"))
	_, err := svc.VoidInvoice(context.Background(), staff, sent.ID, VoidInvoiceRequest{Reason: "duplicate"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	inv, err := svc.VoidInvoice(context.Background(), admin, sent.ID, VoidInvoiceRequest{Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusVoid, inv.Status)
	require.NotNil(t, inv.VoidReason)
	assert.Equal(t, "duplicate", *inv.VoidReason)

	paid := seedInvoice(repo, InvoiceStatusPaid, dec("100"))
	inv, err = svc.VoidInvoice(context.Background(), admin, paid.ID, VoidInvoiceRequest{Reason: "settled in error"})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusVoid, inv.Status)

	_, err = svc.VoidInvoice(context.Background(), admin, paid.ID, VoidInvoiceRequest{Reason: "again"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateInvoiceFieldRules(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	paid := seedInvoice(repo, InvoiceStatusPaid, dec("100"))
	notes := "note"
	_, err := svc.UpdateInvoice(context.Background(), admin, paid.ID, UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorIs(t, err, shared.ErrValidation)

	voided := seedInvoice(repo, InvoiceStatusVoid, dec("100"))
	term := TermNet60
	_, err = svc.UpdateInvoice(context.Background(), admin, voided.ID, UpdateInvoiceRequest{PaymentTerm: &term})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.UpdateInvoice(context.Background(), staff, voided.ID, UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorIs(t, err, shared.ErrForbidden)
	inv, err := svc.UpdateInvoice(context.Background(), admin, voided.ID, UpdateInvoiceRequest{Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, inv.Notes)
	assert.Equal(t, "note", *inv.Notes)

	sent := seedInvoice(repo, InvoiceStatusSent, dec("100"))
	otherStaff := shared.Actor{ID: 42, Role: shared.RoleStaff}
	_, err = svc.UpdateInvoice(context.Background(), otherStaff, sent.ID, UpdateInvoiceRequest{PaymentTerm: &term})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	// the creator may change the term; the due date follows the issue date
	inv, err = svc.UpdateInvoice(context.Background(), staff, sent.ID, UpdateInvoiceRequest{PaymentTerm: &term})
	require.NoError(t, err)
	assert.Equal(t, TermNet60, inv.PaymentTerm)
	assert.Equal(t, "2025-03-02", inv.DueDate.Format("2006-01-02"))
}

func TestUpdateInvoiceReplacesItemsWholesale(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	issue := date("2025-01-01")
	inv, err := svc.CreateInvoice(context.Background(), staff, CreateInvoiceRequest{
		CompanyID: 1, CustomerID: 10, PaymentTerm: TermNet30, IssueDate: &issue,
		Items: []InvoiceItemRequest{
			{Description: "Cement PC40", Quantity: dec("100"), UnitPrice: dec("95000")},
		},
	})
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.Equal(dec("9500000")))

	inv, err = svc.UpdateInvoice(context.Background(), staff, inv.ID, UpdateInvoiceRequest{
		Items: []InvoiceItemRequest{
			{Description: "Cement PC40", Quantity: dec("50"), UnitPrice: dec("95000")},
			{Description: "Delivery fee", Quantity: dec("1"), UnitPrice: dec("200000")},
		},
	})
	require.NoError(t, err)
	require.Len(t, inv.Items, 2, "items are replaced, not merged")
	assert.True(t, inv.TotalAmount.Equal(dec("4950000")), "got %s", inv.TotalAmount)

	// once sent, the item set is frozen
	_, err = svc.SendInvoice(context.Background(), staff, inv.ID)
	require.NoError(t, err)
	_, err = svc.UpdateInvoice(context.Background(), staff, inv.ID, UpdateInvoiceRequest{
		Items: []InvoiceItemRequest{
			{Description: "x", Quantity: dec("1"), UnitPrice: dec("1")},
		},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateFromOrder(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.orders[50] = &OrderSummary{
		ID: 50, CompanyID: 1, CustomerID: 10, Status: "DELIVERED",
		TotalAmount: dec("1450000"),
		Lines: []OrderLine{
			{ProductID: 1, ProductName: "Steel Pipe 21mm", Quantity: dec("10"), UnitPrice: dec("150000"), Discount: dec("50000")},
		},
	}

	inv, err := svc.CreateFromOrder(context.Background(), staff, CreateFromOrderRequest{
		OrderID: 50, PaymentTerm: TermNet15,
	})
	require.NoError(t, err)
	require.NotNil(t, inv.OrderID)
	assert.Equal(t, int64(50), *inv.OrderID)
	assert.True(t, inv.TotalAmount.Equal(dec("1450000")))
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Steel Pipe 21mm", inv.Items[0].Description)

	// only one active invoice per order
	_, err = svc.CreateFromOrder(context.Background(), staff, CreateFromOrderRequest{
		OrderID: 50, PaymentTerm: TermNet15,
	})
	assert.ErrorIs(t, err, shared.ErrConflict)

	// voiding the first frees the order for re-invoicing
	_, err = svc.VoidInvoice(context.Background(), admin, inv.ID, VoidInvoiceRequest{Reason: "redo"})
	require.NoError(t, err)
	_, err = svc.CreateFromOrder(context.Background(), staff, CreateFromOrderRequest{
		OrderID: 50, PaymentTerm: TermNet15,
	})
	require.NoError(t, err)
}

func TestCreateFromOrderRejectsCancelled(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.orders[51] = &OrderSummary{
		ID: 51, CompanyID: 1, CustomerID: 10, Status: "CANCELLED",
		TotalAmount: dec("100"),
		Lines:       []OrderLine{{ProductID: 1, ProductName: "x", Quantity: dec("1"), UnitPrice: dec("100")}},
	}

	_, err := svc.CreateFromOrder(context.Background(), staff, CreateFromOrderRequest{
		OrderID: 51, PaymentTerm: TermNet30,
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAgingBuckets(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	asOf := date("2025-06-15")

	mk := func(due string, total, paid string) {
		inv := seedInvoice(repo, InvoiceStatusSent, dec(total))
		inv.DueDate = date(due)
		inv.PaidAmount = dec(paid)
	}
	mk("2025-07-01", "100", "0") // current
	mk("2025-06-01", "200", "50") // 14 days overdue
	mk("2025-04-20", "300", "0") // 56 days overdue
	mk("2025-03-20", "400", "0") // 87 days overdue
	mk("2024-12-01", "500", "0") // far overdue
	mk("2025-06-01", "600", "600") // settled balance, excluded

	report, err := svc.Aging(context.Background(), 1, asOf)
	require.NoError(t, err)

	byLabel := map[string]AgingBucket{}
	for _, b := range report.Buckets {
		byLabel[b.Label] = b
	}
	assert.True(t, byLabel["current"].Amount.Equal(dec("100")))
	assert.True(t, byLabel["1-30"].Amount.Equal(dec("150")))
	assert.True(t, byLabel["31-60"].Amount.Equal(dec("300")))
	assert.True(t, byLabel["61-90"].Amount.Equal(dec("400")))
	assert.True(t, byLabel["over_90"].Amount.Equal(dec("500")))
	assert.Equal(t, 1, byLabel["1-30"].Count)
	assert.True(t, report.TotalOutstanding.Equal(dec("1450")))
}
