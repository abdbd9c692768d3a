package repos

import (
	"database/sql"
	"errors"
	"strings"

	"crossbuy/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrCodeTaken is returned when a generated payment code collides; callers regenerate and retry.
var ErrCodeTaken = errors.New("payment code already taken")

// notFound maps sql.ErrNoRows to the domain class so handlers never see driver errors.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// uniqueViolation reports whether err is a unique-constraint failure and returns a hint naming the
// constraint (postgres) or the offending columns (sqlite).
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == "23505"
	}
	msg := err.Error()
	if i := strings.Index(msg, "UNIQUE constraint failed"); i >= 0 {
		return msg[i:], true
	}
	return "", false
}

// checkViolation covers the quantity >= 0 backstop on inventory records.
func checkViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}
