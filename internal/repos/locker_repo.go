package repos

import (
	"context"

	"crossbuy/internal/domain"

	"github.com/jmoiron/sqlx"
)

type LockerRepo struct{ db *sqlx.DB }

func NewLockerRepo(db *sqlx.DB) *LockerRepo { return &LockerRepo{db: db} }

// DefaultActive returns the locker new orders ship to when the customer names no destination.
func (r *LockerRepo) DefaultActive(ctx context.Context) (domain.Locker, error) {
	var l domain.Locker
	err := r.db.GetContext(ctx, &l, r.db.Rebind(`
	  SELECT id, name, active, is_default
	  FROM lockers
	  WHERE active = ? AND is_default = ?
	  ORDER BY id
	  LIMIT 1
	`), true, true)
	return l, notFound(err)
}
