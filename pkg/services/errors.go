// Package services provides the report generation and report query services.
package services

import (
	"errors"
	"fmt"

	"github.com/cryptodashboard/reportgen/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidReportID  = errors.New("invalid report id")
	ErrAPIKeyMissing    = errors.New("GEMINI_API_KEY is not configured")
	ErrInvalidPageLimit = errors.New("invalid page limit")

	// ErrReportNotFound is returned when a report is not found.
	ErrReportNotFound = persistence.ErrReportNotFound

	// Availability Errors (503 Service Unavailable).
	ErrGeneratorClosed = errors.New("report generator is shutting down")

	// ErrGenerationFailed is returned by synchronous runs that ended without a report.
	ErrGenerationFailed = errors.New("report generation failed")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidReportID) ||
		errors.Is(err, ErrAPIKeyMissing) ||
		errors.Is(err, ErrInvalidPageLimit)
}

// IsUnavailableError checks if an error should return HTTP 503.
func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrGeneratorClosed)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
