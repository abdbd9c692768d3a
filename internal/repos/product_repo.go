package repos

import (
	"context"
	"fmt"

	"crossbuy/internal/domain"

	"github.com/jmoiron/sqlx"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

const productCols = `id, sku, name, cost, price, active, created_at`

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO products (`+productCols+`)
	  VALUES (?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.SKU, p.Name, p.Cost, p.Price, p.Active, p.CreatedAt)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrDuplicateSKU
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE id = ?`), id)
	return p, notFound(err)
}

// List returns products ordered by SKU; activeOnly hides retired ones.
func (r *ProductRepo) List(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	where, args := `1 = 1`, []any{}
	if activeOnly {
		where += ` AND active = ?`
		args = append(args, true)
	}
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT `+productCols+`
	  FROM products
	  WHERE `+where+`
	  ORDER BY sku
	`), args...)
	return out, err
}
