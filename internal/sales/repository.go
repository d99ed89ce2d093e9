package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tienbob/Tubex-sub001/internal/platform/db"
	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// Repository provides PostgreSQL backed persistence for sales operations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetQuote(ctx context.Context, id int64) (*Quote, error)
	ListQuotes(ctx context.Context, req ListQuotesRequest) ([]QuoteWithDetails, int, error)
	ListExpirableQuoteIDs(ctx context.Context, asOf time.Time) ([]int64, error)

	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, req ListOrdersRequest) ([]OrderWithDetails, int, error)

	FindProducts(ctx context.Context, ids []int64) (map[int64]ProductInfo, error)
}

// TxRepository exposes the write operations available inside a transaction.
type TxRepository interface {
	CreateQuote(ctx context.Context, quote Quote) (int64, error)
	InsertQuoteItem(ctx context.Context, item QuoteItem) (int64, error)
	UpdateQuote(ctx context.Context, id int64, updates map[string]interface{}) error
	UpdateQuoteStatus(ctx context.Context, id int64, status QuoteStatus, reason *string, convertedOrderID *int64) error
	DeleteQuoteItems(ctx context.Context, quoteID int64) error
	DeleteQuote(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, order Order) (int64, error)
	InsertOrderItem(ctx context.Context, item OrderItem) (int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, updates map[string]interface{}) error

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

// WithTx wraps the callback in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quoteColumns = `id, quote_number, company_id, customer_id, status, total_amount,
	valid_until, notes, rejection_reason, converted_order_id, created_by, created_at, updated_at`

func (r *repository) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
	q, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
		}
		return nil, err
	}

	items, err := r.getQuoteItems(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func (r *repository) getQuoteItems(ctx context.Context, quoteID int64) ([]QuoteItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, product_id, quantity, unit_price, discount, notes, created_at, updated_at
		FROM quote_items WHERE quote_id = $1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QuoteItem
	for rows.Next() {
		var it QuoteItem
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.ProductID, &it.Quantity, &it.UnitPrice,
			&it.Discount, &it.Notes, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) ListQuotes(ctx context.Context, req ListQuotesRequest) ([]QuoteWithDetails, int, error) {
	conditions := []string{"q.company_id = $1"}
	args := []interface{}{req.CompanyID}
	argPos := 2

	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("q.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("q.created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("q.created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotes q "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT q.id, q.quote_number, q.company_id, q.customer_id, q.status, q.total_amount,
		       q.valid_until, q.notes, q.rejection_reason, q.converted_order_id,
		       q.created_by, q.created_at, q.updated_at,
		       c.name AS customer_name
		FROM quotes q
		JOIN companies c ON q.customer_id = c.id
		%s
		ORDER BY q.created_at DESC, q.id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotes []QuoteWithDetails
	for rows.Next() {
		var q QuoteWithDetails
		if err := rows.Scan(&q.ID, &q.QuoteNumber, &q.CompanyID, &q.CustomerID, &q.Status,
			&q.TotalAmount, &q.ValidUntil, &q.Notes, &q.RejectionReason, &q.ConvertedOrderID,
			&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt, &q.CustomerName); err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, q)
	}
	return quotes, total, rows.Err()
}

func (r *repository) ListExpirableQuoteIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM quotes
		WHERE status IN ($1, $2) AND valid_until < $3
		ORDER BY id`, QuoteStatusDraft, QuoteStatusPending, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) CreateQuote(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotes (quote_number, company_id, customer_id, status, total_amount,
			valid_until, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		q.QuoteNumber, q.CompanyID, q.CustomerID, q.Status, q.TotalAmount,
		q.ValidUntil, q.Notes, q.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) InsertQuoteItem(ctx context.Context, item QuoteItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quote_items (quote_id, product_id, quantity, unit_price, discount, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`,
		item.QuoteID, item.ProductID, item.Quantity, item.UnitPrice, item.Discount, item.Notes).Scan(&id)
	return id, err
}

func (r *repository) UpdateQuote(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE quotes SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"valid_until", "notes", "total_amount"} {
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

func (r *repository) UpdateQuoteStatus(ctx context.Context, id int64, status QuoteStatus, reason *string, convertedOrderID *int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE quotes
		SET status = $1,
		    rejection_reason = COALESCE($2, rejection_reason),
		    converted_order_id = COALESCE($3, converted_order_id),
		    updated_at = NOW()
		WHERE id = $4`,
		status, reason, convertedOrderID, id)
	return err
}

func (r *repository) DeleteQuoteItems(ctx context.Context, quoteID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID)
	return err
}

func (r *repository) DeleteQuote(ctx context.Context, id int64) error {
	// quote_items cascade with the quote.
	_, err := r.db.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	return err
}

const orderColumns = `id, order_number, company_id, customer_id, quote_id, status, payment_status,
	payment_method, total_amount, delivery_address, notes, cancel_reason, created_by, created_at, updated_at`

func (r *repository) GetOrder(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}

	items, err := r.getOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *repository) getOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, discount, created_at, updated_at
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
			&it.Discount, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) ListOrders(ctx context.Context, req ListOrdersRequest) ([]OrderWithDetails, int, error) {
	conditions := []string{"o.company_id = $1"}
	args := []interface{}{req.CompanyID}
	argPos := 2

	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("o.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.PaymentStatus != nil {
		conditions = append(conditions, fmt.Sprintf("o.payment_status = $%d", argPos))
		args = append(args, *req.PaymentStatus)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders o "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT o.id, o.order_number, o.company_id, o.customer_id, o.quote_id, o.status,
		       o.payment_status, o.payment_method, o.total_amount, o.delivery_address,
		       o.notes, o.cancel_reason, o.created_by, o.created_at, o.updated_at,
		       c.name AS customer_name
		FROM orders o
		JOIN companies c ON o.customer_id = c.id
		%s
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []OrderWithDetails
	for rows.Next() {
		var o OrderWithDetails
		var addressJSON []byte
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CompanyID, &o.CustomerID, &o.QuoteID,
			&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.TotalAmount, &addressJSON,
			&o.Notes, &o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
			&o.CustomerName); err != nil {
			return nil, 0, err
		}
		if len(addressJSON) > 0 {
			var addr DeliveryAddress
			if err := json.Unmarshal(addressJSON, &addr); err != nil {
				return nil, 0, fmt.Errorf("decode delivery address: %w", err)
			}
			o.DeliveryAddress = &addr
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) CreateOrder(ctx context.Context, o Order) (int64, error) {
	var addressJSON []byte
	if o.DeliveryAddress != nil {
		var err error
		addressJSON, err = json.Marshal(o.DeliveryAddress)
		if err != nil {
			return 0, fmt.Errorf("encode delivery address: %w", err)
		}
	}

	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, company_id, customer_id, quote_id, status, payment_status,
			payment_method, total_amount, delivery_address, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id`,
		o.OrderNumber, o.CompanyID, o.CustomerID, o.QuoteID, o.Status, o.PaymentStatus,
		o.PaymentMethod, o.TotalAmount, addressJSON, o.Notes, o.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) InsertOrderItem(ctx context.Context, item OrderItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, discount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Discount).Scan(&id)
	return id, err
}

func (r *repository) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, updates map[string]interface{}) error {
	query := "UPDATE orders SET status = $1, updated_at = NOW()"
	args := []interface{}{status}
	argPos := 2

	for _, col := range []string{"payment_status", "cancel_reason"} {
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

func (r *repository) FindProducts(ctx context.Context, ids []int64) (map[int64]ProductInfo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, status, base_price FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[int64]ProductInfo, len(ids))
	for rows.Next() {
		var p ProductInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.BasePrice); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (r *repository) NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, r.db, prefix, date)
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.CompanyID, &q.CustomerID, &q.Status,
		&q.TotalAmount, &q.ValidUntil, &q.Notes, &q.RejectionReason, &q.ConvertedOrderID,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var addressJSON []byte
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CompanyID, &o.CustomerID, &o.QuoteID,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.TotalAmount, &addressJSON,
		&o.Notes, &o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(addressJSON) > 0 {
		var addr DeliveryAddress
		if err := json.Unmarshal(addressJSON, &addr); err != nil {
			return nil, fmt.Errorf("decode delivery address: %w", err)
		}
		o.DeliveryAddress = &addr
	}
	return &o, nil
}
