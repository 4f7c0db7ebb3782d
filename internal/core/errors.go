// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Code extracts the code of a structured error, or "UNKNOWN".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "UNKNOWN"
}

// Predefined errors
var (
	// Source errors
	ErrSourceUnavailable = &Error{Code: "SOURCE_UNAVAILABLE", Message: "data source unavailable"}
	ErrSchemaMismatch    = &Error{Code: "SCHEMA_MISMATCH", Message: "expected field not found"}

	// Valuation skip reasons
	ErrNoMultiple      = &Error{Code: "NO_MULTIPLE", Message: "no forward or trailing P/E"}
	ErrNoEarnings      = &Error{Code: "NO_EARNINGS", Message: "no annual earnings"}
	ErrNoPriceHistory  = &Error{Code: "NO_PRICE_HISTORY", Message: "no price history"}
	ErrNoPositiveYears = &Error{Code: "NO_POSITIVE_YEARS", Message: "no year with positive earnings and prices"}
	ErrDegenerate      = &Error{Code: "DEGENERATE", Message: "historical P/E is zero"}
	ErrUnexpected      = &Error{Code: "UNEXPECTED", Message: "unexpected evaluation failure"}

	// Lookup errors
	ErrIndexNotFound = &Error{Code: "INDEX_NOT_FOUND", Message: "unknown index"}
	ErrJobNotFound   = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrScanPending   = &Error{Code: "SCAN_PENDING", Message: "scan has not finished"}

	// Request errors
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}
	ErrUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid api key"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
