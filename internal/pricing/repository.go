package pricing

import (
	"context"
	"encoding/json"
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

// MigratableItem is one legacy price list row eligible for migration.
type MigratableItem struct {
	ListID        int64
	ListName      string
	ProductID     int64
	Price         decimal.Decimal
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

// Repository provides PostgreSQL backed persistence for pricing.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetPriceList(ctx context.Context, id int64) (*PriceList, error)
	ListPriceLists(ctx context.Context, companyID int64) ([]PriceList, error)
	GetPricing(ctx context.Context, id int64) (*ProductPricing, error)
	ListPricing(ctx context.Context, req ListPricingRequest) ([]ProductPricing, int, error)
	ListListPriceChanges(ctx context.Context, companyID, productID int64) ([]ListPriceChange, error)
	ListPricingEvents(ctx context.Context, companyID, productID int64) ([]PricingEvent, error)

	FindActivePricing(ctx context.Context, companyID, productID int64, at time.Time) (*ProductPricing, error)
	FindDefaultListPrice(ctx context.Context, companyID, productID int64, at time.Time) (decimal.Decimal, error)
	GetBasePrice(ctx context.Context, productID int64) (decimal.Decimal, error)

	ListExpiredPricingIDs(ctx context.Context, asOf time.Time) ([]int64, error)
	ListMigratableItems(ctx context.Context, companyID int64) ([]MigratableItem, error)
	CountSkippedLists(ctx context.Context, companyID int64) (int, error)
	CountMigratedRows(ctx context.Context, companyID int64) (int, error)
}

// TxRepository exposes the write operations available inside a transaction.
type TxRepository interface {
	LockCompanyPriceLists(ctx context.Context, companyID int64) error
	ClearDefaultList(ctx context.Context, companyID int64) error
	CreatePriceList(ctx context.Context, list PriceList) (int64, error)
	UpdatePriceList(ctx context.Context, id int64, updates map[string]interface{}) error
	GetPriceListItem(ctx context.Context, listID, productID int64) (*PriceListItem, error)
	InsertPriceListItem(ctx context.Context, item PriceListItem) (int64, error)
	UpsertPriceListItem(ctx context.Context, item PriceListItem) (int64, error)
	DeletePriceListItem(ctx context.Context, listID, productID int64) error

	CreatePricing(ctx context.Context, p ProductPricing) (int64, error)
	UpdatePricing(ctx context.Context, id int64, updates map[string]interface{}) error
	InsertListPriceChange(ctx context.Context, change ListPriceChange) error
	InsertPricingEvent(ctx context.Context, event PricingEvent) error

	CountMigratedRows(ctx context.Context, companyID int64) (int, error)
	DeleteMigrationBatch(ctx context.Context, companyID int64, batchID string, changedBy int64) (int, error)
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

func (r *repository) GetPriceList(ctx context.Context, id int64) (*PriceList, error) {
	var list PriceList
	err := r.db.QueryRow(ctx, `
		SELECT id, company_id, name, is_default, status, created_by, created_at, updated_at
		FROM price_lists WHERE id = $1`, id).
		Scan(&list.ID, &list.CompanyID, &list.Name, &list.IsDefault, &list.Status,
			&list.CreatedBy, &list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: price list %d", shared.ErrNotFound, id)
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, price_list_id, product_id, price, effective_from, effective_to, created_at, updated_at
		FROM price_list_items WHERE price_list_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it PriceListItem
		if err := rows.Scan(&it.ID, &it.PriceListID, &it.ProductID, &it.Price,
			&it.EffectiveFrom, &it.EffectiveTo, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		list.Items = append(list.Items, it)
	}
	return &list, rows.Err()
}

func (r *repository) ListPriceLists(ctx context.Context, companyID int64) ([]PriceList, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, name, is_default, status, created_by, created_at, updated_at
		FROM price_lists WHERE company_id = $1 ORDER BY is_default DESC, name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []PriceList
	for rows.Next() {
		var list PriceList
		if err := rows.Scan(&list.ID, &list.CompanyID, &list.Name, &list.IsDefault,
			&list.Status, &list.CreatedBy, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// LockCompanyPriceLists serializes default-flag changes per company.
func (r *repository) LockCompanyPriceLists(ctx context.Context, companyID int64) error {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM price_lists WHERE company_id = $1 FOR UPDATE`, companyID)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (r *repository) ClearDefaultList(ctx context.Context, companyID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE price_lists SET is_default = FALSE, updated_at = NOW() WHERE company_id = $1 AND is_default`, companyID)
	return err
}

func (r *repository) CreatePriceList(ctx context.Context, list PriceList) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO price_lists (company_id, name, is_default, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, NOW(), NOW())
		RETURNING id`,
		list.CompanyID, list.Name, list.IsDefault, list.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) UpdatePriceList(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE price_lists SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"name", "is_default", "status"} {
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

func (r *repository) GetPriceListItem(ctx context.Context, listID, productID int64) (*PriceListItem, error) {
	var it PriceListItem
	err := r.db.QueryRow(ctx, `
		SELECT id, price_list_id, product_id, price, effective_from, effective_to, created_at, updated_at
		FROM price_list_items WHERE price_list_id = $1 AND product_id = $2`, listID, productID).
		Scan(&it.ID, &it.PriceListID, &it.ProductID, &it.Price,
			&it.EffectiveFrom, &it.EffectiveTo, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no price for product %d on list %d", shared.ErrNotFound, productID, listID)
		}
		return nil, err
	}
	return &it, nil
}

// InsertPriceListItem adds a product to a list. A product may appear on a
// list at most once; uq_price_list_items enforces it.
func (r *repository) InsertPriceListItem(ctx context.Context, item PriceListItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO price_list_items (price_list_id, product_id, price, effective_from, effective_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id`,
		item.PriceListID, item.ProductID, item.Price, item.EffectiveFrom, item.EffectiveTo).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: product %d is already on list %d", shared.ErrConflict, item.ProductID, item.PriceListID)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UpsertPriceListItem(ctx context.Context, item PriceListItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO price_list_items (price_list_id, product_id, price, effective_from, effective_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (price_list_id, product_id)
		DO UPDATE SET price = EXCLUDED.price,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to,
			updated_at = NOW()
		RETURNING id`,
		item.PriceListID, item.ProductID, item.Price, item.EffectiveFrom, item.EffectiveTo).Scan(&id)
	return id, err
}

func (r *repository) DeletePriceListItem(ctx context.Context, listID, productID int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM price_list_items WHERE price_list_id = $1 AND product_id = $2`, listID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no price for product %d on list %d", shared.ErrNotFound, productID, listID)
	}
	return nil
}

const pricingColumns = `id, company_id, product_id, pricing_type, price, min_quantity,
	effective_from, effective_to, is_active, metadata, created_by, created_at, updated_at`

func (r *repository) GetPricing(ctx context.Context, id int64) (*ProductPricing, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pricingColumns+` FROM product_pricing WHERE id = $1`, id)
	p, err := scanPricing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: pricing %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (r *repository) ListPricing(ctx context.Context, req ListPricingRequest) ([]ProductPricing, int, error) {
	conditions := []string{"company_id = $1"}
	args := []interface{}{req.CompanyID}
	argPos := 2

	if req.ProductID != nil {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", argPos))
		args = append(args, *req.ProductID)
		argPos++
	}
	if req.PricingType != nil {
		conditions = append(conditions, fmt.Sprintf("pricing_type = $%d", argPos))
		args = append(args, *req.PricingType)
		argPos++
	}
	if req.ActiveOnly {
		conditions = append(conditions, "is_active")
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM product_pricing "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+pricingColumns+` FROM product_pricing %s
		ORDER BY product_id, pricing_type LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []ProductPricing
	for rows.Next() {
		p, err := scanPricing(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *p)
	}
	return entries, total, rows.Err()
}

func (r *repository) ListListPriceChanges(ctx context.Context, companyID, productID int64) ([]ListPriceChange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT h.id, h.price_list_id, h.product_id, h.old_price, h.new_price, h.reason, h.changed_by, h.changed_at
		FROM product_price_history h
		JOIN price_lists pl ON h.price_list_id = pl.id
		WHERE pl.company_id = $1 AND h.product_id = $2
		ORDER BY h.changed_at DESC, h.id DESC`, companyID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []ListPriceChange
	for rows.Next() {
		var c ListPriceChange
		if err := rows.Scan(&c.ID, &c.PriceListID, &c.ProductID,
			&c.OldPrice, &c.NewPrice, &c.Reason, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *repository) ListPricingEvents(ctx context.Context, companyID, productID int64) ([]PricingEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, pricing_id, company_id, product_id, action, old_price, new_price, changed_by, changed_at
		FROM pricing_history
		WHERE company_id = $1 AND product_id = $2
		ORDER BY changed_at DESC, id DESC`, companyID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PricingEvent
	for rows.Next() {
		var e PricingEvent
		if err := rows.Scan(&e.ID, &e.PricingID, &e.CompanyID, &e.ProductID, &e.Action,
			&e.OldPrice, &e.NewPrice, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *repository) FindActivePricing(ctx context.Context, companyID, productID int64, at time.Time) (*ProductPricing, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+pricingColumns+` FROM product_pricing
		WHERE company_id = $1 AND product_id = $2 AND is_active
		  AND effective_from <= $3 AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY effective_from DESC
		LIMIT 1`, companyID, productID, at)
	p, err := scanPricing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active pricing", shared.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func (r *repository) FindDefaultListPrice(ctx context.Context, companyID, productID int64, at time.Time) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT pli.price
		FROM price_list_items pli
		JOIN price_lists pl ON pli.price_list_id = pl.id
		WHERE pl.company_id = $1 AND pl.is_default AND pl.status = 'active' AND pli.product_id = $2
		  AND (pli.effective_from IS NULL OR pli.effective_from <= $3)
		  AND (pli.effective_to IS NULL OR pli.effective_to >= $3)`,
		companyID, productID, at).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: no default list price", shared.ErrNotFound)
		}
		return decimal.Zero, err
	}
	return price, nil
}

func (r *repository) GetBasePrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT base_price FROM products WHERE id = $1`, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
		}
		return decimal.Zero, err
	}
	return price, nil
}

func (r *repository) ListExpiredPricingIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM product_pricing
		WHERE is_active AND effective_to IS NOT NULL AND effective_to < $1
		ORDER BY id`, asOf)
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

func (r *repository) CreatePricing(ctx context.Context, p ProductPricing) (int64, error) {
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO product_pricing (company_id, product_id, pricing_type, price, min_quantity,
			effective_from, effective_to, is_active, metadata, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		p.CompanyID, p.ProductID, p.PricingType, p.Price, p.MinQuantity,
		p.EffectiveFrom, p.EffectiveTo, p.IsActive, metaJSON, p.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: pricing entry already exists for this product and type", shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UpdatePricing(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE product_pricing SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"price", "effective_to", "is_active"} {
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

func (r *repository) InsertListPriceChange(ctx context.Context, change ListPriceChange) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO product_price_history (price_list_id, product_id, old_price, new_price, reason, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		change.PriceListID, change.ProductID, change.OldPrice, change.NewPrice, change.Reason, change.ChangedBy)
	return err
}

func (r *repository) InsertPricingEvent(ctx context.Context, event PricingEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pricing_history (pricing_id, company_id, product_id, action, old_price, new_price, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		event.PricingID, event.CompanyID, event.ProductID, event.Action,
		event.OldPrice, event.NewPrice, event.ChangedBy)
	return err
}

func (r *repository) ListMigratableItems(ctx context.Context, companyID int64) ([]MigratableItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT pl.id, pl.name, pli.product_id, pli.price, pli.effective_from, pli.effective_to
		FROM price_list_items pli
		JOIN price_lists pl ON pli.price_list_id = pl.id
		WHERE pl.company_id = $1 AND pl.status = 'active'
		ORDER BY pl.id, pli.product_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MigratableItem
	for rows.Next() {
		var it MigratableItem
		if err := rows.Scan(&it.ListID, &it.ListName, &it.ProductID, &it.Price,
			&it.EffectiveFrom, &it.EffectiveTo); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountSkippedLists counts the company's lists the migration passes over
// because they are not active.
func (r *repository) CountSkippedLists(ctx context.Context, companyID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM price_lists
		WHERE company_id = $1 AND status <> 'active'`, companyID).Scan(&count)
	return count, err
}

// CountMigratedRows counts unified pricing rows that carry migration
// provenance; used both as the idempotency guard and the post-run check.
func (r *repository) CountMigratedRows(ctx context.Context, companyID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM product_pricing
		WHERE company_id = $1 AND metadata->>'migrated_from' = 'price_list_item'`, companyID).Scan(&count)
	return count, err
}

// DeleteMigrationBatch records a DELETED event per row before removing the
// batch, so the audit trail survives the rollback.
func (r *repository) DeleteMigrationBatch(ctx context.Context, companyID int64, batchID string, changedBy int64) (int, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pricing_history (pricing_id, company_id, product_id, action, old_price, new_price, changed_by, changed_at)
		SELECT id, company_id, product_id, 'DELETED', price, NULL, $3, NOW()
		FROM product_pricing
		WHERE company_id = $1 AND metadata->>'migration_batch' = $2`, companyID, batchID, changedBy)
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM product_pricing
		WHERE company_id = $1 AND metadata->>'migration_batch' = $2`, companyID, batchID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanPricing(row pgx.Row) (*ProductPricing, error) {
	var p ProductPricing
	var metaJSON []byte
	err := row.Scan(&p.ID, &p.CompanyID, &p.ProductID, &p.PricingType, &p.Price, &p.MinQuantity,
		&p.EffectiveFrom, &p.EffectiveTo, &p.IsActive, &metaJSON, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &p, nil
}
