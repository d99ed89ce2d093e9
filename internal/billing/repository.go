package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tienbob/Tubex-sub001/internal/platform/db"
	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// OrderSummary is the slice of an order needed to build an invoice from it.
type OrderSummary struct {
	ID          int64
	CompanyID   int64
	CustomerID  int64
	Status      string
	TotalAmount decimal.Decimal
	Lines       []OrderLine
}

// OrderLine is one invoiceable order line with the product name resolved.
type OrderLine struct {
	ProductID   int64
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
}

// Repository provides PostgreSQL backed persistence for billing.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]InvoiceWithDetails, int, error)
	ListOpenInvoices(ctx context.Context, companyID int64) ([]Invoice, error)
	GetOrderSummary(ctx context.Context, orderID int64) (*OrderSummary, error)
}

// TxRepository exposes the write operations available inside a transaction.
type TxRepository interface {
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertInvoiceItem(ctx context.Context, item InvoiceItem) (int64, error)
	DeleteInvoiceItems(ctx context.Context, invoiceID int64) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	UpdateInvoice(ctx context.Context, id int64, updates map[string]interface{}) error
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, voidReason *string) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	UpdatePaymentReconciliation(ctx context.Context, invoiceID, paymentID int64, status ReconciliationStatus) error
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	SetPaidAmount(ctx context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error
	NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const invoiceColumns = `id, invoice_number, company_id, customer_id, order_id, status, payment_term,
	issue_date, due_date, total_amount, paid_amount, notes, void_reason, created_by, created_at, updated_at`

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	if err := r.loadDetails(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoiceForUpdate locks the invoice row so concurrent payment recordings
// serialize on it.
func (r *repository) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return inv, nil
}

func (r *repository) loadDetails(ctx context.Context, inv *Invoice) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, product_id, description, quantity, unit_price, discount, tax, line_total, created_at
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.Discount, &it.Tax, &it.LineTotal, &it.CreatedAt); err != nil {
			return err
		}
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	payRows, err := r.db.Query(ctx, `
		SELECT id, payment_number, invoice_id, transaction_id, amount, method, paid_at, reconciliation_status, notes, recorded_by, created_at
		FROM payments WHERE invoice_id = $1 ORDER BY paid_at, id`, inv.ID)
	if err != nil {
		return err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p Payment
		if err := payRows.Scan(&p.ID, &p.PaymentNumber, &p.InvoiceID, &p.TransactionID, &p.Amount, &p.Method,
			&p.PaidAt, &p.ReconciliationStatus, &p.Notes, &p.RecordedBy, &p.CreatedAt); err != nil {
			return err
		}
		inv.Payments = append(inv.Payments, p)
	}
	return payRows.Err()
}

func (r *repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]InvoiceWithDetails, int, error) {
	conditions := []string{"i.company_id = $1"}
	args := []interface{}{req.CompanyID}
	argPos := 2

	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("i.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.Overdue {
		conditions = append(conditions, "i.due_date < NOW() AND i.status NOT IN ('PAID', 'VOID')")
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("i.issue_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("i.issue_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices i "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT i.id, i.invoice_number, i.company_id, i.customer_id, i.order_id, i.status,
		       i.payment_term, i.issue_date, i.due_date, i.total_amount, i.paid_amount,
		       i.notes, i.void_reason, i.created_by, i.created_at, i.updated_at,
		       c.name AS customer_name
		FROM invoices i
		JOIN companies c ON i.customer_id = c.id
		%s
		ORDER BY i.issue_date DESC, i.id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []InvoiceWithDetails
	for rows.Next() {
		var inv InvoiceWithDetails
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.CompanyID, &inv.CustomerID,
			&inv.OrderID, &inv.Status, &inv.PaymentTerm, &inv.IssueDate, &inv.DueDate,
			&inv.TotalAmount, &inv.PaidAmount, &inv.Notes, &inv.VoidReason,
			&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt, &inv.CustomerName); err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

func (r *repository) ListOpenInvoices(ctx context.Context, companyID int64) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE company_id = $1 AND status NOT IN ('DRAFT', 'PAID', 'VOID')
		ORDER BY due_date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (r *repository) GetOrderSummary(ctx context.Context, orderID int64) (*OrderSummary, error) {
	var o OrderSummary
	err := r.db.QueryRow(ctx, `
		SELECT id, company_id, customer_id, status, total_amount
		FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.CompanyID, &o.CustomerID, &o.Status, &o.TotalAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, orderID)
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT oi.product_id, p.name, oi.quantity, oi.unit_price, oi.discount
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = $1 ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Quantity,
			&line.UnitPrice, &line.Discount); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	return &o, rows.Err()
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, company_id, customer_id, order_id, status, payment_term,
			issue_date, due_date, total_amount, paid_amount, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, NOW(), NOW())
		RETURNING id`,
		inv.InvoiceNumber, inv.CompanyID, inv.CustomerID, inv.OrderID, inv.Status, inv.PaymentTerm,
		inv.IssueDate, inv.DueDate, inv.TotalAmount, inv.Notes, inv.CreatedBy).Scan(&id)
	if err != nil {
		// uq_invoices_active_order guards one non-VOID invoice per order
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: order already has an active invoice", shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertInvoiceItem(ctx context.Context, item InvoiceItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoice_items (invoice_id, product_id, description, quantity, unit_price, discount, tax, line_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`,
		item.InvoiceID, item.ProductID, item.Description, item.Quantity, item.UnitPrice,
		item.Discount, item.Tax, item.LineTotal).Scan(&id)
	return id, err
}

func (r *repository) DeleteInvoiceItems(ctx context.Context, invoiceID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID)
	return err
}

func (r *repository) UpdateInvoice(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE invoices SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"payment_term", "due_date", "notes", "total_amount"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	_, err := r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, voidReason *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = $1, void_reason = COALESCE($2, void_reason), updated_at = NOW()
		WHERE id = $3`, status, voidReason, id)
	return err
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (payment_number, invoice_id, transaction_id, amount, method, paid_at, reconciliation_status, notes, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`,
		p.PaymentNumber, p.InvoiceID, p.TransactionID, p.Amount, p.Method, p.PaidAt,
		p.ReconciliationStatus, p.Notes, p.RecordedBy).Scan(&id)
	return id, err
}

func (r *repository) UpdatePaymentReconciliation(ctx context.Context, invoiceID, paymentID int64, status ReconciliationStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET reconciliation_status = $1
		WHERE id = $2 AND invoice_id = $3`, status, paymentID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: payment %d on invoice %d", shared.ErrNotFound, paymentID, invoiceID)
	}
	return nil
}

// SumPayments recomputes the paid amount from the payment rows. Money columns
// are NOT NULL so COALESCE covers the zero-payment case only.
func (r *repository) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *repository) SetPaidAmount(ctx context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invoices SET paid_amount = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		paid, status, id)
	return err
}

func (r *repository) NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, r.db, prefix, date)
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.CompanyID, &inv.CustomerID, &inv.OrderID,
		&inv.Status, &inv.PaymentTerm, &inv.IssueDate, &inv.DueDate, &inv.TotalAmount,
		&inv.PaidAmount, &inv.Notes, &inv.VoidReason, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
