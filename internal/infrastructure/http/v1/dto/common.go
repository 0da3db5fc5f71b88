// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// --- Health ---

const (
	HealthOK    = "ok"
	HealthError = "error"
)

// HealthResponse is returned by the health checks.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ParseDate parses an optional YYYY-MM-DD field.
func ParseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, apperror.NewValidation("invalid date").
			WithDetail("field", field).
			WithDetail("expected", DateLayout)
	}
	return &t, nil
}

// ParseOptionalID parses an optional UUID field.
func ParseOptionalID(field, value string) (*id.ID, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := id.Parse(value)
	if err != nil {
		return nil, apperror.NewValidation("invalid id").WithDetail("field", field)
	}
	return &parsed, nil
}
