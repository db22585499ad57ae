package procurement

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

	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool     *pgxpool.Pool
	attempts int
}

// NewRepository constructs a repository. attempts bounds WithTx retries.
func NewRepository(pool *pgxpool.Pool, attempts int) *Repository {
	return &Repository{pool: pool, attempts: attempts}
}

type txRepo struct {
	q   db.DBTX
	inv inventory.TxRepository
}

// WithTx wraps callback in a repeatable-read transaction, retried on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, r.attempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, inv: inventory.NewTxRepository(tx)})
	})
}

func (t *txRepo) Inventory() inventory.TxRepository { return t.inv }

const poColumns = `id, po_number, supplier_id, supplier_name, total_amount::text, delivery_date, payment_terms, notes,
status, receiving_status, approval_id, created_by_id, created_by_name, created_by_role, created_at, updated_at,
submitted_at, approved_at, rejected_at, completed_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		total  string
		status string
	)
	err := row.Scan(&po.ID, &po.PONumber, &po.SupplierID, &po.SupplierName, &total, &po.DeliveryDate, &po.PaymentTerms, &po.Notes,
		&status, &po.ReceivingStatus, &po.ApprovalID, &po.CreatedBy.ID, &po.CreatedBy.Name, &po.CreatedBy.Role, &po.CreatedAt, &po.UpdatedAt,
		&po.SubmittedAt, &po.ApprovedAt, &po.RejectedAt, &po.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, err
	}
	normalized, ok := NormalizeStatus(status)
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("procurement: purchase order %s has unknown status %q", po.ID, status)
	}
	po.Status = normalized
	if po.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: purchase order %s total: %w", po.ID, err)
	}
	return po, nil
}

const itemColumns = `id, product_id, product_name, variant_id, size, unit, quantity, unit_price::text, total::text,
restock_request_id, received_quantity`

func loadItems(ctx context.Context, q db.DBTX, poID string) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM po_items WHERE po_id = $1 ORDER BY position`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var (
			item         LineItem
			price, total string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.VariantID, &item.Size, &item.Unit, &item.Quantity,
			&price, &total, &item.RestockRequestID, &item.ReceivedQuantity); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if item.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func getPO(ctx context.Context, q db.DBTX, id string, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	po, err := scanPO(q.QueryRow(ctx, query, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Items, err = loadItems(ctx, q, id); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, id, false)
}

// ListPOs returns orders matching filter, newest first, and the total match count.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.SupplierID != "" {
		add("supplier_id = $%d", filter.SupplierID)
	}
	if !filter.CreatedFrom.IsZero() {
		add("created_at >= $%d", filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		add("created_at < $%d", filter.CreatedTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM purchase_orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		poColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range orders {
		if orders[i].Items, err = loadItems(ctx, r.pool, orders[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

// GetApproval loads an approval chain.
func (r *Repository) GetApproval(ctx context.Context, id string) (Approval, error) {
	return getApproval(ctx, r.pool, id, false)
}

func getApproval(ctx context.Context, q db.DBTX, id string, lock bool) (Approval, error) {
	query := `SELECT id, po_id, status, steps, created_at, updated_at FROM po_approvals WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var (
		a     Approval
		steps []byte
	)
	err := q.QueryRow(ctx, query, id).Scan(&a.ID, &a.POID, &a.Status, &steps, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approval{}, ErrApprovalNotFound
		}
		return Approval{}, err
	}
	if err := json.Unmarshal(steps, &a.Steps); err != nil {
		return Approval{}, fmt.Errorf("procurement: approval %s steps: %w", a.ID, err)
	}
	return a, nil
}

const receivingColumns = `id, po_id, po_number, COALESCE(session_key, ''), delivery, lines, summary, received_by, created_at`

func scanReceiving(row pgx.Row) (ReceivingTransaction, error) {
	var (
		rt                                   ReceivingTransaction
		delivery, lines, summary, receivedBy []byte
	)
	err := row.Scan(&rt.ID, &rt.POID, &rt.PONumber, &rt.SessionKey, &delivery, &lines, &summary, &receivedBy, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReceivingTransaction{}, ErrReceivingNotFound
		}
		return ReceivingTransaction{}, err
	}
	for _, part := range []struct {
		raw []byte
		dst any
	}{{delivery, &rt.Delivery}, {lines, &rt.Lines}, {summary, &rt.Summary}, {receivedBy, &rt.ReceivedBy}} {
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return ReceivingTransaction{}, fmt.Errorf("procurement: receiving %s: %w", rt.ID, err)
		}
	}
	return rt, nil
}

// ListReceivingTransactions returns receiving records of an order, oldest first.
func (r *Repository) ListReceivingTransactions(ctx context.Context, poID string) ([]ReceivingTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+receivingColumns+` FROM receiving_transactions WHERE po_id = $1 ORDER BY created_at, id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceivingTransaction
	for rows.Next() {
		rt, err := scanReceiving(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// GetReceivingTransaction loads one receiving record.
func (r *Repository) GetReceivingTransaction(ctx context.Context, id string) (ReceivingTransaction, error) {
	return scanReceiving(r.pool.QueryRow(ctx, `SELECT `+receivingColumns+` FROM receiving_transactions WHERE id = $1`, id))
}

// PORef is the light projection used by change polling.
type PORef struct {
	ID        string
	UpdatedAt time.Time
}

// ListPORefs returns ids and update stamps of orders, newest first.
func (r *Repository) ListPORefs(ctx context.Context, limit int) ([]PORef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, updated_at FROM purchase_orders ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PORef
	for rows.Next() {
		var ref PORef
		if err := rows.Scan(&ref.ID, &ref.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (t *txRepo) CountPOsCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	return n, err
}

func (t *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) error {
	_, err := t.q.Exec(ctx, `INSERT INTO purchase_orders (id, po_number, supplier_id, supplier_name, total_amount, delivery_date,
payment_terms, notes, status, receiving_status, approval_id, created_by_id, created_by_name, created_by_role, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		po.ID, po.PONumber, po.SupplierID, po.SupplierName, po.TotalAmount.String(), po.DeliveryDate,
		po.PaymentTerms, po.Notes, string(po.Status), string(po.ReceivingStatus), po.ApprovalID,
		po.CreatedBy.ID, po.CreatedBy.Name, string(po.CreatedBy.Role), po.CreatedAt, po.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("procurement: po number %s: %w", po.PONumber, db.ErrSerialization)
		}
		return err
	}
	return t.insertItems(ctx, po.ID, po.Items)
}

func (t *txRepo) insertItems(ctx context.Context, poID string, items []LineItem) error {
	for i, item := range items {
		_, err := t.q.Exec(ctx, `INSERT INTO po_items (id, po_id, position, product_id, product_name, variant_id, size, unit,
quantity, unit_price, total, restock_request_id, received_quantity)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11::numeric,$12,$13)`,
			item.ID, poID, i, item.ProductID, item.ProductName, item.VariantID, item.Size, item.Unit,
			item.Quantity, item.UnitPrice.String(), item.Total.String(), item.RestockRequestID, item.ReceivedQuantity)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, error) {
	return getPO(ctx, t.q, id, true)
}

func (t *txRepo) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_orders SET supplier_id=$2, supplier_name=$3, total_amount=$4::numeric, delivery_date=$5,
payment_terms=$6, notes=$7, status=$8, receiving_status=$9, approval_id=$10, updated_at=$11,
submitted_at=$12, approved_at=$13, rejected_at=$14, completed_at=$15 WHERE id=$1`,
		po.ID, po.SupplierID, po.SupplierName, po.TotalAmount.String(), po.DeliveryDate,
		po.PaymentTerms, po.Notes, string(po.Status), string(po.ReceivingStatus), po.ApprovalID, po.UpdatedAt,
		po.SubmittedAt, po.ApprovedAt, po.RejectedAt, po.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (t *txRepo) ReplaceItems(ctx context.Context, poID string, items []LineItem) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM po_items WHERE po_id = $1`, poID); err != nil {
		return err
	}
	return t.insertItems(ctx, poID, items)
}

func (t *txRepo) SetItemReceived(ctx context.Context, poID, lineID string, received int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE po_items SET received_quantity = $3 WHERE po_id = $1 AND id = $2`, poID, lineID, received)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: line %s", ErrLineNotOnOrder, lineID)
	}
	return nil
}

func (t *txRepo) DeletePO(ctx context.Context, id string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM po_items WHERE po_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (t *txRepo) InsertApproval(ctx context.Context, a Approval) error {
	steps, err := json.Marshal(a.Steps)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `INSERT INTO po_approvals (id, po_id, status, steps, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.POID, string(a.Status), steps, a.CreatedAt, a.UpdatedAt)
	return err
}

func (t *txRepo) GetApprovalForUpdate(ctx context.Context, id string) (Approval, error) {
	return getApproval(ctx, t.q, id, true)
}

func (t *txRepo) UpdateApproval(ctx context.Context, a Approval) error {
	steps, err := json.Marshal(a.Steps)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE po_approvals SET status=$2, steps=$3, updated_at=$4 WHERE id=$1`,
		a.ID, string(a.Status), steps, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrApprovalNotFound
	}
	return nil
}

func (t *txRepo) InsertReceivingTransaction(ctx context.Context, rt ReceivingTransaction) error {
	delivery, err := json.Marshal(rt.Delivery)
	if err != nil {
		return err
	}
	lines, err := json.Marshal(rt.Lines)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(rt.Summary)
	if err != nil {
		return err
	}
	receivedBy, err := json.Marshal(rt.ReceivedBy)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `INSERT INTO receiving_transactions (id, po_id, po_number, session_key, delivery, lines, summary, received_by, created_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9)`,
		rt.ID, rt.POID, rt.PONumber, rt.SessionKey, delivery, lines, summary, receivedBy, rt.CreatedAt)
	if err != nil && db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: receiving session %s already applied", ErrDuplicateSession, rt.SessionKey)
	}
	return err
}
