package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
)

// PostgreSQL error codes mapped to application errors.
const (
	pgUniqueViolation       = "23505"
	pgForeignKeyViolation   = "23503"
	pgInsufficientPrivilege = "42501"
)

var errNoScope = errors.New("no database scope in context")

// mapError converts driver errors into apperrors sentinels, wrapping anything
// else with the operation name.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, apperrors.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: referenced row missing: %w", op, apperrors.ErrNotFound)
		case pgInsufficientPrivilege:
			return fmt.Errorf("%s: %w", op, apperrors.ErrForbidden)
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
