package repos

import (
	"context"
	"fmt"

	"crossbuy/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type InventoryRepo struct{ db *sqlx.DB }

func NewInventoryRepo(db *sqlx.DB) *InventoryRepo { return &InventoryRepo{db: db} }

const recordCols = `
	id, product_id, location, warehouse, quantity, min_quantity, max_quantity,
	last_restocked_at, version, created_at, updated_at`

const movementCols = `id, record_id, product_id, kind, delta, reference_id, reason, source, actor_id, created_at`

// CreateRecord inserts a lot and, when opening is non-nil, its opening movement so the ledger
// matches the starting quantity.
func (r *InventoryRepo) CreateRecord(ctx context.Context, rec *domain.InventoryRecord, opening *domain.Movement) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// lot_seq breaks created_at ties so FIFO order is total.
	var lot int64
	if err := tx.GetContext(ctx, &lot, `SELECT COALESCE(MAX(lot_seq), 0) + 1 FROM inventory_records`); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
	  INSERT INTO inventory_records (`+recordCols+`, lot_seq)
	  VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`),
		rec.ID, rec.ProductID, rec.Location, rec.Warehouse, rec.Quantity, rec.MinQuantity, rec.MaxQuantity,
		rec.LastRestockedAt, rec.Version, rec.CreatedAt, rec.UpdatedAt, lot,
	)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("insert inventory record: %w", err)
	}
	if opening != nil {
		if err := insertMovement(ctx, tx, opening); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *InventoryRepo) GetRecord(ctx context.Context, id string) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`SELECT `+recordCols+` FROM inventory_records WHERE id = ?`), id)
	return rec, notFound(err)
}

// ListRecords returns every lot, or only the lots of productID when it is non-empty.
func (r *InventoryRepo) ListRecords(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	where, args := `1 = 1`, []any{}
	if productID != "" {
		where += ` AND product_id = ?`
		args = append(args, productID)
	}
	out := []domain.InventoryRecord{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT `+recordCols+`
	  FROM inventory_records
	  WHERE `+where+`
	  ORDER BY product_id, created_at, lot_seq
	`), args...)
	return out, err
}

// FIFOLots returns the product's lots that still hold stock, oldest first.
func (r *InventoryRepo) FIFOLots(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	out := []domain.InventoryRecord{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT `+recordCols+`
	  FROM inventory_records
	  WHERE product_id = ? AND quantity > 0
	  ORDER BY created_at, lot_seq
	`), productID)
	return out, err
}

// ApplyMovement appends m to the ledger and applies m.Delta to the record in one transaction,
// guarded by the record version. Returns ErrStaleWrite when the version moved (caller re-reads and
// retries) and ErrNegativeStock when the result would drop below zero.
func (r *InventoryRepo) ApplyMovement(ctx context.Context, m *domain.Movement, expected int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMovement(ctx, tx, m); err != nil {
		return err
	}

	q := `
	  UPDATE inventory_records
	  SET quantity = quantity + ?, version = version + 1, updated_at = ?
	  WHERE id = ? AND version = ? AND quantity + ? >= 0`
	args := []any{m.Delta, m.CreatedAt, m.RecordID, expected, m.Delta}
	if m.Kind == domain.MovementIn {
		q = `
	  UPDATE inventory_records
	  SET quantity = quantity + ?, version = version + 1, updated_at = ?, last_restocked_at = ?
	  WHERE id = ? AND version = ? AND quantity + ? >= 0`
		args = []any{m.Delta, m.CreatedAt, m.CreatedAt, m.RecordID, expected, m.Delta}
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if checkViolation(err) {
		return domain.ErrNegativeStock
	}
	if err != nil {
		return fmt.Errorf("apply movement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var cur struct {
			Quantity int   `db:"quantity"`
			Version  int64 `db:"version"`
		}
		err := tx.GetContext(ctx, &cur, tx.Rebind(`SELECT quantity, version FROM inventory_records WHERE id = ?`), m.RecordID)
		if err != nil {
			return notFound(err)
		}
		if cur.Version != expected {
			return domain.ErrStaleWrite
		}
		return domain.ErrNegativeStock
	}
	return tx.Commit()
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, m *domain.Movement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Source == "" {
		m.Source = domain.SourceManual
	}
	var seq int64
	if err := tx.GetContext(ctx, &seq, tx.Rebind(`
	  SELECT COALESCE(MAX(seq), 0) + 1 FROM inventory_movements WHERE record_id = ?
	`), m.RecordID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`
	  INSERT INTO inventory_movements (`+movementCols+`, seq)
	  VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`), m.ID, m.RecordID, m.ProductID, string(m.Kind), m.Delta, m.ReferenceID, m.Reason, m.Source, m.ActorID, m.CreatedAt, seq)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrStaleWrite
	}
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// LowStock lists lots at or under their reorder threshold.
func (r *InventoryRepo) LowStock(ctx context.Context) ([]domain.InventoryRecord, error) {
	out := []domain.InventoryRecord{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT `+recordCols+`
	  FROM inventory_records
	  WHERE quantity <= min_quantity
	  ORDER BY product_id, created_at, lot_seq
	`)
	return out, err
}

// DeleteRecord removes an empty lot. Its movements stay in the ledger.
func (r *InventoryRepo) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM inventory_records WHERE id = ? AND quantity = 0`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetRecord(ctx, id); err != nil {
		return err
	}
	return domain.ErrRecordNotEmpty
}

func (r *InventoryRepo) Movements(ctx context.Context, recordID string) ([]domain.Movement, error) {
	out := []domain.Movement{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT `+movementCols+`
	  FROM inventory_movements
	  WHERE record_id = ?
	  ORDER BY seq
	`), recordID)
	return out, err
}

// FulfilledForOrder is how many units of productID fulfillment has already taken for the order.
// Hand-recorded movements that merely reference the order do not count.
func (r *InventoryRepo) FulfilledForOrder(ctx context.Context, orderID, productID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
	  SELECT COALESCE(SUM(-delta), 0)
	  FROM inventory_movements
	  WHERE reference_id = ? AND product_id = ? AND kind = ? AND source = ?
	`), orderID, productID, string(domain.MovementOut), domain.SourceFulfillment)
	return n, err
}

// LedgerSum is the quantity the movement history implies for a record.
func (r *InventoryRepo) LedgerSum(ctx context.Context, recordID string) (int, error) {
	var sum int
	err := r.db.GetContext(ctx, &sum, r.db.Rebind(`
	  SELECT COALESCE(SUM(delta), 0) FROM inventory_movements WHERE record_id = ?
	`), recordID)
	return sum, err
}
