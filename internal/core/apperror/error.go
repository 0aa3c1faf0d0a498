// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Ledger policy violations (422)
	CodeBusinessRule  = "BUSINESS_RULE_VIOLATION"
	CodeNegativeStock = "NEGATIVE_STOCK"

	// Count state machine violations
	CodeCountNotReady        = "COUNT_NOT_READY"
	CodeCountIncomplete      = "COUNT_INCOMPLETE"
	CodeCountNotEditable     = "COUNT_NOT_EDITABLE"
	CodeCountAlreadyApproved = "COUNT_ALREADY_APPROVED"
	CodeInvalidStatus        = "INVALID_STATUS"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict            = "CONFLICT"
	CodeDuplicate           = "DUPLICATE_ENTRY"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// AppError is the standard error type for the ledger.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewNegativeStock is returned when a movement would push a balance below zero
// in a warehouse that does not allow negative stock.
func NewNegativeStock(itemID, warehouseID any, available, requested string) *AppError {
	return &AppError{
		Code:       CodeNegativeStock,
		Message:    "Movement would drive stock below zero",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"item_id":      itemID,
			"warehouse_id": warehouseID,
			"available":    available,
			"requested":    requested,
		},
	}
}

// NewCountNotReady is returned when approval is attempted from a status
// that does not allow it.
func NewCountNotReady(countID any, status string) *AppError {
	return &AppError{
		Code:       CodeCountNotReady,
		Message:    fmt.Sprintf("Count in status %q cannot be approved", status),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"count_id": countID, "status": status},
	}
}

// NewCountIncomplete is returned when some count lines have no counted quantity.
func NewCountIncomplete(countID any, missingItemIDs []string) *AppError {
	return &AppError{
		Code:       CodeCountIncomplete,
		Message:    fmt.Sprintf("%d item(s) have not been counted", len(missingItemIDs)),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"count_id": countID, "missing_items": missingItemIDs},
	}
}

// NewCountNotEditable is returned when counted quantities are entered after counting closed.
func NewCountNotEditable(countID any, status string) *AppError {
	return &AppError{
		Code:       CodeCountNotEditable,
		Message:    fmt.Sprintf("Count in status %q is no longer editable", status),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"count_id": countID, "status": status},
	}
}

// NewCountAlreadyApproved is returned on a repeated approval.
func NewCountAlreadyApproved(countID any) *AppError {
	return &AppError{
		Code:       CodeCountAlreadyApproved,
		Message:    "Count is already approved",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"count_id": countID},
	}
}

// NewConcurrencyConflict creates an optimistic locking error.
// Callers inside the ledger retry it; it reaches clients only after retries are exhausted.
func NewConcurrencyConflict(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrencyConflict,
		Message:    "Record was modified concurrently. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsConcurrencyConflict checks if error is CodeConcurrencyConflict
func IsConcurrencyConflict(err error) bool {
	return IsCode(err, CodeConcurrencyConflict)
}
