package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/task-tracker/internal/store"
)

// SQLSTATE codes mapped by MapError.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
	stringTooLongCode       = "22001"
)

// constraintErrors lists the integrity failures reported as invalid
// entities, with the label used in the wrapped message.
var constraintErrors = map[string]string{
	foreignKeyViolationCode: "foreign key violation",
	checkViolationCode:      "check constraint violation",
	notNullViolationCode:    "not null violation",
	stringTooLongCode:       "value too long",
}

// MapError translates driver errors into store sentinels. The original error
// text is kept in the chain; errors it does not recognise pass through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	label, ok := constraintErrors[pgErr.Code]
	if !ok {
		return err
	}
	if target := constraintTarget(pgErr); target != "" {
		label += " (" + target + ")"
	}
	return fmt.Errorf("%w: %s: %v", store.ErrInvalidEntity, label, err)
}

func constraintTarget(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.ColumnName
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// checkVersionedUpdate inspects a row-version guarded UPDATE. No affected
// rows means the version was stale or the row is gone.
func checkVersionedUpdate(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrConcurrencyConflict
	}
	return nil
}
