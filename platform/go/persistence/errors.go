package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates a point lookup matched no row.
var ErrNotFound = errors.New("record not found")

// IsUniqueViolation reports whether err is a postgres unique-constraint violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
