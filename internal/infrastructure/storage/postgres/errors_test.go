package postgres

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperror.CodeConcurrencyConflict, http.StatusConflict},
		{"deadlock", fmt.Errorf("save balance: %w", &pgconn.PgError{Code: "40P01"}), apperror.CodeConcurrencyConflict, http.StatusConflict},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "cat_items_code_key"}, apperror.CodeConflict, http.StatusConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperror.CodeValidation, http.StatusBadRequest},
		{"trigger", &pgconn.PgError{Code: "P0001", Message: "stock movements are immutable"}, apperror.CodeBusinessRule, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			assert.True(t, apperror.IsCode(got, tt.code), got.Error())
			assert.Equal(t, tt.status, apperror.GetHTTPStatus(got))

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(got, &pgErr), "cause is kept")
		})
	}
}

func TestTranslate_PassesThrough(t *testing.T) {
	assert.NoError(t, translate(nil))

	plain := errors.New("connection refused")
	assert.Same(t, plain, translate(plain))

	appErr := apperror.NewNegativeStock("i", "w", "1", "2")
	assert.Same(t, appErr, translate(appErr))

	unknown := &pgconn.PgError{Code: "57014"}
	assert.Same(t, unknown, translate(unknown))
}

func TestTranslateError_NotFound(t *testing.T) {
	err := TranslateError(fmt.Errorf("get: %w", pgx.ErrNoRows), "item", "42")
	assert.True(t, apperror.IsNotFound(err))
}
