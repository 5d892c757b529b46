package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/clubsite/server/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// constraintViolation reports the violated constraint name when err is a
// postgres error with the given SQLSTATE.
func constraintViolation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// observe records the query duration for operation. Bare sentinel errors
// are domain outcomes (not found, conflicts) and are not counted as
// database errors; only wrapped driver failures and context errors are.
func observe(operation string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && errors.Unwrap(err) == nil {
		err = nil
	}
	metrics.RecordQuery(operation, start, err)
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// derefString safely dereferences a string pointer, returning empty string if nil
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
