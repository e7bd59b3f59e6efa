// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrReportNotFound indicates a report was not found by the given identifier.
	ErrReportNotFound = errors.New("report not found")

	// ErrIncompleteReport indicates a report is missing one of its page fields.
	ErrIncompleteReport = errors.New("incomplete report")
)

// ReportError wraps report-related errors with additional context.
type ReportError struct {
	Op       string // Operation being performed (e.g., "Save", "GetByID", "Delete")
	ReportID int64  // Report ID if applicable
	Err      error  // Underlying error
	Message  string // Additional context message
}

func (e *ReportError) Error() string {
	target := "new report"
	if e.ReportID != 0 {
		target = fmt.Sprintf("report %d", e.ReportID)
	}

	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for %s: %s (%v)", e.Op, target, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, target, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for report errors.
func (e *ReportError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewReportError creates a new report error with context.
func NewReportError(op string, reportID int64, err error) *ReportError {
	return &ReportError{
		Op:       op,
		ReportID: reportID,
		Err:      err,
	}
}

// IsReportNotFound checks if an error indicates a report was not found.
func IsReportNotFound(err error) bool {
	return errors.Is(err, ErrReportNotFound)
}

var transientMarkers = []string{
	"ssl",
	"tls",
	"decryption failed",
	"bad record mac",
	"connection reset",
	"broken pipe",
	"connection refused",
	"server closed the connection",
	"driver: bad connection",
}

// IsTransient reports whether err is a transport level failure worth retrying
// on a fresh connection. Constraint violations and SQL errors are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception. Class 57P: operator intervention (admin shutdown).
		return pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	return false
}
