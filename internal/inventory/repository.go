package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	attempts int
}

// NewRepository constructs Repository. attempts bounds WithTx retries on
// serialization failures.
func NewRepository(pool *pgxpool.Pool, attempts int) *Repository {
	return &Repository{pool: pool, attempts: attempts}
}

type txRepo struct {
	q db.DBTX
}

// NewTxRepository binds inventory writes to a transaction opened elsewhere.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, r.attempts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const variantColumns = `id, parent_product_id, name, size, unit, quantity, safety_stock, restock_level,
unit_price::text, warehouse, shelf, row_name, column_name, suppliers, updated_at`

func scanVariant(row pgx.Row) (Variant, error) {
	var (
		v         Variant
		price     string
		suppliers []byte
	)
	err := row.Scan(&v.ID, &v.ParentProductID, &v.Name, &v.Size, &v.Unit, &v.Quantity, &v.SafetyStock, &v.RestockLevel,
		&price, &v.Location.Warehouse, &v.Location.Shelf, &v.Location.Row, &v.Location.Column, &suppliers, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, ErrVariantNotFound
		}
		return Variant{}, err
	}
	if v.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return Variant{}, fmt.Errorf("inventory: variant %s price: %w", v.ID, err)
	}
	if len(suppliers) > 0 {
		if err := json.Unmarshal(suppliers, &v.Suppliers); err != nil {
			return Variant{}, fmt.Errorf("inventory: variant %s suppliers: %w", v.ID, err)
		}
	}
	return v, nil
}

func collectVariants(rows pgx.Rows) ([]Variant, error) {
	defer rows.Close()
	var out []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func getVariant(ctx context.Context, q db.DBTX, id string, lock bool) (Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanVariant(q.QueryRow(ctx, query, id))
}

func listVariantsByProduct(ctx context.Context, q db.DBTX, productID string) ([]Variant, error) {
	rows, err := q.Query(ctx, `SELECT `+variantColumns+` FROM variants WHERE parent_product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	return collectVariants(rows)
}

// GetVariant returns a variant by id.
func (r *Repository) GetVariant(ctx context.Context, id string) (Variant, error) {
	return getVariant(ctx, r.pool, id, false)
}

// ListVariantsByProduct lists the variants of a product.
func (r *Repository) ListVariantsByProduct(ctx context.Context, productID string) ([]Variant, error) {
	return listVariantsByProduct(ctx, r.pool, productID)
}

// SearchVariantsByName performs a case-insensitive substring search.
func (r *Repository) SearchVariantsByName(ctx context.Context, name string, limit int) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+variantColumns+` FROM variants WHERE name ILIKE '%' || $1 || '%' ORDER BY name LIMIT $2`,
		strings.TrimSpace(name), limit)
	if err != nil {
		return nil, err
	}
	return collectVariants(rows)
}

// ListVariants lists variants matching filter.
func (r *Repository) ListVariants(ctx context.Context, filter VariantFilter) ([]Variant, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("parent_product_id = $%d", len(args)))
	}
	if filter.Warehouse != "" {
		args = append(args, filter.Warehouse)
		clauses = append(clauses, fmt.Sprintf("warehouse = $%d", len(args)))
	}
	if filter.BelowRestock {
		clauses = append(clauses, "quantity <= restock_level")
	}
	query := `SELECT ` + variantColumns + ` FROM variants`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY name, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectVariants(rows)
}

// GetProduct returns a product with its aggregates.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	var (
		p                  Product
		minPrice, maxPrice string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, total_stock, total_variants, min_price::text, max_price::text, stats_updated_at
FROM products WHERE id = $1`, id).Scan(&p.ID, &p.Name, &p.TotalStock, &p.TotalVariants, &minPrice, &maxPrice, &p.StatsUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	p.MinPrice, _ = decimal.NewFromString(minPrice)
	p.MaxPrice, _ = decimal.NewFromString(maxPrice)
	return p, nil
}

// ListMovements lists ledger entries newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.VariantID != "" {
		add("variant_id = $%d", filter.VariantID)
	}
	if filter.ProductID != "" {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.RefID != "" {
		add("ref_id = $%d", filter.RefID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	query := `SELECT id, movement_type, product_id, variant_id, quantity, before_quantity, after_quantity,
ref_module, ref_id, receiving_tx_id, reason, actor_id, actor_name, created_at FROM stock_movements`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockMovement
	for rows.Next() {
		var (
			m   StockMovement
			typ string
		)
		if err := rows.Scan(&m.ID, &typ, &m.ProductID, &m.VariantID, &m.Quantity, &m.BeforeQuantity, &m.AfterQuantity,
			&m.RefModule, &m.RefID, &m.ReceivingTxID, &m.Reason, &m.ActorID, &m.ActorName, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MovementType = MovementType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

const restockColumns = `id, product_id, product_name, variant_id, size, unit, current_quantity, restock_level, safety_stock,
priority, status, warehouse, shelf, row_name, column_name, purchase_order_id, note, created_at, resolved_at`

func scanRestock(row pgx.Row) (RestockingRequest, error) {
	var (
		r                RestockingRequest
		priority, status string
	)
	err := row.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.VariantID, &r.Size, &r.Unit, &r.CurrentQuantity, &r.RestockLevel,
		&r.SafetyStock, &priority, &status, &r.Location.Warehouse, &r.Location.Shelf, &r.Location.Row, &r.Location.Column,
		&r.PurchaseOrderID, &r.Note, &r.CreatedAt, &r.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RestockingRequest{}, ErrRestockNotFound
		}
		return RestockingRequest{}, err
	}
	r.Priority = RestockPriority(priority)
	r.Status = RestockStatus(status)
	return r, nil
}

func collectRestocks(rows pgx.Rows) ([]RestockingRequest, error) {
	defer rows.Close()
	var out []RestockingRequest
	for rows.Next() {
		r, err := scanRestock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRestockRequests lists requests matching filter.
func (r *Repository) ListRestockRequests(ctx context.Context, filter RestockFilter) ([]RestockingRequest, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, string(filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	query := `SELECT ` + restockColumns + ` FROM restocking_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at LIMIT $%d", len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRestocks(rows)
}

// SnapshotTotals aggregates stock levels in one pass.
func (r *Repository) SnapshotTotals(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(*),
  COALESCE(SUM(quantity), 0),
  COALESCE(SUM(safety_stock), 0),
  COUNT(*) FILTER (WHERE quantity <= restock_level),
  COUNT(*) FILTER (WHERE quantity < safety_stock),
  (SELECT COUNT(*) FROM restocking_requests WHERE status IN ('pending', 'acknowledged'))
FROM variants`).Scan(&s.TotalVariants, &s.TotalUnits, &s.TotalSafetyStock, &s.LowStockCount, &s.BelowSafetyCount, &s.OpenRestockCount)
	return s, err
}

func (t *txRepo) GetVariantForUpdate(ctx context.Context, id string) (Variant, error) {
	return getVariant(ctx, t.q, id, true)
}

func (t *txRepo) UpdateVariantStock(ctx context.Context, id string, quantity, safetyStock int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE variants SET quantity = $2, safety_stock = $3, updated_at = $4 WHERE id = $1`,
		id, quantity, safetyStock, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVariantNotFound
	}
	return nil
}

func (t *txRepo) InsertMovement(ctx context.Context, m StockMovement) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock_movements (id, movement_type, product_id, variant_id, quantity, before_quantity,
after_quantity, ref_module, ref_id, receiving_tx_id, reason, actor_id, actor_name, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, string(m.MovementType), m.ProductID, m.VariantID, m.Quantity, m.BeforeQuantity, m.AfterQuantity,
		m.RefModule, m.RefID, m.ReceivingTxID, m.Reason, m.ActorID, m.ActorName, m.CreatedAt)
	return err
}

func (t *txRepo) ListVariantsByProduct(ctx context.Context, productID string) ([]Variant, error) {
	return listVariantsByProduct(ctx, t.q, productID)
}

func (t *txRepo) UpdateProductStats(ctx context.Context, productID string, stats ProductStats, at time.Time) error {
	_, err := t.q.Exec(ctx, `INSERT INTO products (id, name, total_stock, total_variants, min_price, max_price, stats_updated_at)
VALUES ($1, '', $2, $3, $4::numeric, $5::numeric, $6)
ON CONFLICT (id) DO UPDATE SET total_stock = EXCLUDED.total_stock, total_variants = EXCLUDED.total_variants,
  min_price = EXCLUDED.min_price, max_price = EXCLUDED.max_price, stats_updated_at = EXCLUDED.stats_updated_at`,
		productID, stats.TotalStock, stats.TotalVariants, stats.MinPrice.String(), stats.MaxPrice.String(), at)
	return err
}

func (t *txRepo) ListRestockRequestsByProduct(ctx context.Context, productID string) ([]RestockingRequest, error) {
	rows, err := t.q.Query(ctx, `SELECT `+restockColumns+` FROM restocking_requests WHERE product_id = $1 ORDER BY created_at FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	return collectRestocks(rows)
}

func (t *txRepo) GetRestockRequestForUpdate(ctx context.Context, id string) (RestockingRequest, error) {
	return scanRestock(t.q.QueryRow(ctx, `SELECT `+restockColumns+` FROM restocking_requests WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateRestockStatus(ctx context.Context, id string, status RestockStatus, poID, note string, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE restocking_requests SET status = $2,
  purchase_order_id = CASE WHEN $3 = '' THEN purchase_order_id ELSE $3 END,
  note = CASE WHEN $4 = '' THEN note ELSE $4 END,
  resolved_at = CASE WHEN $2 IN ('pending', 'acknowledged') THEN NULL ELSE $5 END
WHERE id = $1`, id, string(status), poID, note, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRestockNotFound
	}
	return nil
}

func (t *txRepo) UpsertVariant(ctx context.Context, v Variant) error {
	suppliers, err := json.Marshal(v.Suppliers)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `INSERT INTO variants (id, parent_product_id, name, size, unit, quantity, safety_stock, restock_level,
unit_price, warehouse, shelf, row_name, column_name, suppliers, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET parent_product_id = EXCLUDED.parent_product_id, name = EXCLUDED.name, size = EXCLUDED.size,
  unit = EXCLUDED.unit, quantity = EXCLUDED.quantity, safety_stock = EXCLUDED.safety_stock,
  restock_level = EXCLUDED.restock_level, unit_price = EXCLUDED.unit_price, warehouse = EXCLUDED.warehouse,
  shelf = EXCLUDED.shelf, row_name = EXCLUDED.row_name, column_name = EXCLUDED.column_name,
  suppliers = EXCLUDED.suppliers, updated_at = EXCLUDED.updated_at`,
		v.ID, v.ParentProductID, v.Name, v.Size, v.Unit, v.Quantity, v.SafetyStock, v.RestockLevel, v.UnitPrice.String(),
		v.Location.Warehouse, v.Location.Shelf, v.Location.Row, v.Location.Column, suppliers, v.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `INSERT INTO products (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = CASE WHEN products.name = '' THEN EXCLUDED.name ELSE products.name END`,
		v.ParentProductID, v.Name)
	return err
}

func (t *txRepo) UpsertRestockRequest(ctx context.Context, r RestockingRequest) error {
	_, err := t.q.Exec(ctx, `INSERT INTO restocking_requests (id, product_id, product_name, variant_id, size, unit,
current_quantity, restock_level, safety_stock, priority, status, warehouse, shelf, row_name, column_name,
purchase_order_id, note, created_at, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, priority = EXCLUDED.priority,
  current_quantity = EXCLUDED.current_quantity, purchase_order_id = EXCLUDED.purchase_order_id,
  note = EXCLUDED.note, resolved_at = EXCLUDED.resolved_at`,
		r.ID, r.ProductID, r.ProductName, r.VariantID, r.Size, r.Unit, r.CurrentQuantity, r.RestockLevel, r.SafetyStock,
		string(r.Priority), string(r.Status), r.Location.Warehouse, r.Location.Shelf, r.Location.Row, r.Location.Column,
		r.PurchaseOrderID, r.Note, r.CreatedAt, r.ResolvedAt)
	return err
}
