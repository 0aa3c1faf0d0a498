package postgres

import (
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
)

// PostgreSQL error codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgRaiseException       = "P0001"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translate maps driver errors onto the application error taxonomy.
// Anything it does not recognise is returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return apperror.NewConcurrencyConflict(pgErr.TableName, pgErr.Code).WithCause(err)
	case pgUniqueViolation:
		return apperror.NewConflict("record already exists").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewValidation("referenced record does not exist").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgCheckViolation:
		return apperror.NewValidation("value violates a constraint").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgRaiseException:
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, pgErr.Message).WithCause(err)
	}
	return err
}

// TranslateError is translate for repositories in sub-packages.
// A missing row becomes NotFound for the given entity.
func TranslateError(err error, entity string, key any) error {
	if err != nil && pgxscan.NotFound(err) {
		return apperror.NewNotFound(entity, key)
	}
	return translate(err)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
