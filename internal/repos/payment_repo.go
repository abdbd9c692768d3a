package repos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crossbuy/internal/domain"

	"github.com/jmoiron/sqlx"
)

type PaymentRepo struct{ db *sqlx.DB }

func NewPaymentRepo(db *sqlx.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentCols = `
	id, order_id, method, amount, currency, status, code, reference, failure_reason,
	confirmed_at, failed_at, created_at`

// CreatePending inserts p as the order's single pending payment and mirrors method/status onto the
// order. The in-transaction check covers the common case; ux_payments_one_pending covers the race.
func (r *PaymentRepo) CreatePending(ctx context.Context, p *domain.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var pending int
	if err := tx.GetContext(ctx, &pending, tx.Rebind(`
	  SELECT COUNT(*) FROM payments WHERE order_id = ? AND status = ?
	`), p.OrderID, string(domain.PaymentPending)); err != nil {
		return err
	}
	if pending > 0 {
		return domain.ErrPendingPaymentExists
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
	  INSERT INTO payments (`+paymentCols+`)
	  VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`),
		p.ID, p.OrderID, p.Method, p.Amount, p.Currency, string(p.Status), p.Code, p.Reference,
		p.FailureReason, p.ConfirmedAt, p.FailedAt, p.CreatedAt,
	)
	if hint, dup := uniqueViolation(err); dup {
		if strings.Contains(hint, "code") {
			return ErrCodeTaken
		}
		return domain.ErrPendingPaymentExists
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := mirrorOntoOrder(ctx, tx, p, p.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PaymentRepo) Get(ctx context.Context, id string) (domain.Payment, error) {
	var p domain.Payment
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+paymentCols+` FROM payments WHERE id = ?`), id)
	return p, notFound(err)
}

func (r *PaymentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	out := []domain.Payment{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT `+paymentCols+`
	  FROM payments
	  WHERE order_id = ?
	  ORDER BY created_at, id
	`), orderID)
	return out, err
}

// Resolve moves a pending payment to confirmed or failed. It is a compare-and-set on status: a
// payment that is no longer pending yields ErrPaymentNotPending and nothing is written.
func (r *PaymentRepo) Resolve(ctx context.Context, p *domain.Payment, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
	  UPDATE payments
	  SET status = ?, reference = ?, failure_reason = ?, confirmed_at = ?, failed_at = ?
	  WHERE id = ? AND status = ?
	`), string(p.Status), p.Reference, p.FailureReason, p.ConfirmedAt, p.FailedAt,
		p.ID, string(domain.PaymentPending))
	if err != nil {
		return fmt.Errorf("resolve payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM payments WHERE id = ?`), p.ID); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrPaymentNotPending
	}
	if err := mirrorOntoOrder(ctx, tx, p, at); err != nil {
		return err
	}
	return tx.Commit()
}

func mirrorOntoOrder(ctx context.Context, tx *sqlx.Tx, p *domain.Payment, at time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
	  UPDATE orders SET payment_method = ?, payment_status = ?, updated_at = ? WHERE id = ?
	`), p.Method, string(p.Status), at, p.OrderID)
	if err != nil {
		return fmt.Errorf("mirror payment onto order: %w", err)
	}
	return nil
}
