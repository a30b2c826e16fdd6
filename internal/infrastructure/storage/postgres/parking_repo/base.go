// Package parking_repo provides PostgreSQL implementations of the
// parking domain repositories. Cross-entity invariants live in the
// domain service; here only per-row concerns (optimistic locking,
// constraint translation) are handled.
package parking_repo

import (
	"errors"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"parkcore/internal/core/apperror"
)

const pgCodeUniqueViolation = "23505"

// builder returns a squirrel builder with PostgreSQL placeholder format.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// asUniqueViolation extracts the violated constraint name, or "" when
// err is not a unique violation.
func asUniqueViolation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

// joinColumns renders a column list for RETURNING clauses.
func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

// concurrentModification is returned when an optimistic-locked update
// matched zero rows.
func concurrentModification(table string, entityID any) *apperror.AppError {
	return apperror.NewConflict("record was modified concurrently, please retry").
		WithDetail("entity", table).
		WithDetail("id", entityID)
}
