package repos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crossbuy/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type OrderRepo struct{ db *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderCols = `
	id, customer_id, link, item_name, quantity, address_id, locker_id, notes,
	item_price, shipping_cost, taxes, service_fee, total, status, tracking_number,
	quoted_at, quotation_expires_at, accepted_at, tags, has_issue, issue_description,
	product_id, payment_method, payment_status, version, created_at, updated_at`

// OrderFilter narrows List. Zero values mean "any".
type OrderFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	From       *time.Time
	To         *time.Time
	HasIssue   *bool
	Tags       []string
	Limit      int
}

// Create inserts the order header and its first history row in one transaction.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order, h *domain.StatusHistory) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
	  INSERT INTO orders (`+orderCols+`)
	  VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`),
		o.ID, o.CustomerID, o.Link, o.ItemName, o.Quantity, o.AddressID, o.LockerID, o.Notes,
		o.ItemPrice, o.ShippingCost, o.Taxes, o.ServiceFee, o.Total, string(o.Status), o.TrackingNumber,
		o.QuotedAt, o.QuotationExpiresAt, o.AcceptedAt, o.Tags, o.HasIssue, o.IssueDescription,
		o.ProductID, o.PaymentMethod, o.PaymentStatus, o.Version, o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if h != nil {
		if err := insertHistory(ctx, tx, h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.db.GetContext(ctx, &o, r.db.Rebind(`SELECT `+orderCols+` FROM orders WHERE id = ?`), id)
	return o, notFound(err)
}

// likeEscaper neutralizes LIKE wildcards so "a_b" only matches itself.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns newest first, never more than 100 rows.
func (r *OrderRepo) List(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	where := `1 = 1`
	args := []any{}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.CustomerID != "" {
		where += ` AND customer_id = ?`
		args = append(args, f.CustomerID)
	}
	if f.From != nil {
		where += ` AND created_at >= ?`
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where += ` AND created_at <= ?`
		args = append(args, f.To.UTC())
	}
	if f.HasIssue != nil {
		where += ` AND has_issue = ?`
		args = append(args, *f.HasIssue)
	}
	// tags is a JSON array of strings; every requested tag must be present.
	for _, t := range f.Tags {
		where += ` AND tags LIKE ? ESCAPE '\'`
		args = append(args, `%"`+likeEscaper.Replace(t)+`"%`)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	args = append(args, limit)

	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT `+orderCols+`
	  FROM orders
	  WHERE `+where+`
	  ORDER BY created_at DESC, id DESC
	  LIMIT ?`), args...)
	return out, err
}

// CompareAndSwap writes o only if the stored version still equals expected, appending hist in the
// same transaction. Payment mirror columns are owned by PaymentRepo and left untouched here.
func (r *OrderRepo) CompareAndSwap(ctx context.Context, o *domain.Order, expected int64, hist ...domain.StatusHistory) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
	  UPDATE orders SET
	    link = ?, item_name = ?, quantity = ?, address_id = ?, locker_id = ?, notes = ?,
	    item_price = ?, shipping_cost = ?, taxes = ?, service_fee = ?, total = ?,
	    status = ?, tracking_number = ?, quoted_at = ?, quotation_expires_at = ?, accepted_at = ?,
	    tags = ?, has_issue = ?, issue_description = ?, product_id = ?,
	    version = version + 1, updated_at = ?
	  WHERE id = ? AND version = ?
	`),
		o.Link, o.ItemName, o.Quantity, o.AddressID, o.LockerID, o.Notes,
		o.ItemPrice, o.ShippingCost, o.Taxes, o.ServiceFee, o.Total,
		string(o.Status), o.TrackingNumber, o.QuotedAt, o.QuotationExpiresAt, o.AcceptedAt,
		o.Tags, o.HasIssue, o.IssueDescription, o.ProductID,
		o.UpdatedAt, o.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM orders WHERE id = ?`), o.ID); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrStaleWrite
	}
	for i := range hist {
		if err := insertHistory(ctx, tx, &hist[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	o.Version = expected + 1
	return nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, h *domain.StatusHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	var seq int
	if err := tx.GetContext(ctx, &seq, tx.Rebind(`
	  SELECT COALESCE(MAX(seq), 0) + 1 FROM order_status_history WHERE order_id = ?
	`), h.OrderID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`
	  INSERT INTO order_status_history (id, order_id, seq, status, note, actor_id, created_at)
	  VALUES (?, ?, ?, ?, ?, ?, ?)
	`), h.ID, h.OrderID, seq, string(h.Status), h.Note, h.ActorID, h.CreatedAt)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrStaleWrite
	}
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// History is append-only and returned in the order it was written.
func (r *OrderRepo) History(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	out := []domain.StatusHistory{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT id, order_id, status, note, actor_id, created_at
	  FROM order_status_history
	  WHERE order_id = ?
	  ORDER BY seq
	`), orderID)
	return out, err
}

// Dependents counts payments and inventory movements that reference the order.
func (r *OrderRepo) Dependents(ctx context.Context, orderID string) (payments, movements int, err error) {
	return countDependents(ctx, r.db, orderID)
}

func countDependents(ctx context.Context, q sqlx.ExtContext, orderID string) (payments, movements int, err error) {
	if err = sqlx.GetContext(ctx, q, &payments, q.Rebind(`SELECT COUNT(*) FROM payments WHERE order_id = ?`), orderID); err != nil {
		return 0, 0, err
	}
	if err = sqlx.GetContext(ctx, q, &movements, q.Rebind(`SELECT COUNT(*) FROM inventory_movements WHERE reference_id = ?`), orderID); err != nil {
		return 0, 0, err
	}
	return payments, movements, nil
}

// Delete removes the order and its history unless something still references it.
func (r *OrderRepo) Delete(ctx context.Context, orderID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p, m, err := countDependents(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if p > 0 || m > 0 {
		return domain.ErrOrderHasDependents
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM order_status_history WHERE order_id = ?`), orderID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM orders WHERE id = ?`), orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}
