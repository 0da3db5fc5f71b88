// Package apperror carries errors that map onto API responses. Every error a
// handler can return to a client is an *AppError; anything else is reported
// as INTERNAL_ERROR.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeInternal     = "INTERNAL_ERROR"
	CodeResourceBusy = "RESOURCE_BUSY"

	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidTemplate = "INVALID_SEQUENCE_TEMPLATE"

	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	CodeNotFound = "NOT_FOUND"

	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is a client-facing error with an HTTP status.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	HTTPStatus int `json:"-"`

	// Retryable errors may succeed when repeated unchanged.
	Retryable bool `json:"-"`

	// Err is logged, never sent.
	Err error `json:"-"`
}

func newError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Body is the JSON payload written for e.
func (e *AppError) Body() map[string]any {
	return map[string]any{
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	}
}

// NewValidation reports bad input (400).
func NewValidation(message string) *AppError {
	return newError(CodeValidation, http.StatusBadRequest, message)
}

// NewInvalidTemplate reports a prefix or suffix that cannot be interpolated.
func NewInvalidTemplate(sequenceName string) *AppError {
	return newError(CodeInvalidTemplate, http.StatusBadRequest,
		fmt.Sprintf("Invalid prefix or suffix for sequence '%s'", sequenceName)).
		WithDetail("sequence", sequenceName)
}

// NewResourceBusy reports a row held by a concurrent request. The caller
// decides whether and when to retry.
func NewResourceBusy(entity string, id any) *AppError {
	e := newError(CodeResourceBusy, http.StatusServiceUnavailable,
		fmt.Sprintf("%s is locked by a concurrent request, retry later", entity))
	e.Retryable = true
	return e.WithDetail("entity", entity).WithDetail("id", id)
}

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", entity)).
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewConcurrentModification reports a stale version on an optimistic update.
func NewConcurrentModification(entity string, id any) *AppError {
	return newError(CodeConcurrentModification, http.StatusConflict,
		"Record was modified by another user. Please refresh and try again.").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewInternal wraps err; the client only sees a generic message.
func NewInternal(err error) *AppError {
	return newError(CodeInternal, http.StatusInternalServerError, "Internal server error").WithCause(err)
}

func NewUnauthorized(message string) *AppError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message)
}

func NewForbidden(message string) *AppError {
	return newError(CodeForbidden, http.StatusForbidden, message)
}

// NewDuplicate reports a unique key clash (409).
func NewDuplicate(entity, field, value string) *AppError {
	return newError(CodeDuplicate, http.StatusConflict,
		fmt.Sprintf("%s with this %s already exists", entity, field)).
		WithDetail("entity", entity).
		WithDetail("field", field).
		WithDetail("value", value)
}

// AsAppError extracts AppError from error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool     { return HasCode(err, CodeNotFound) }
func IsResourceBusy(err error) bool { return HasCode(err, CodeResourceBusy) }
func IsValidation(err error) bool   { return HasCode(err, CodeValidation) }
