// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	err := WrapError(ErrSourceUnavailable, errors.New("connection refused"))
	want := "[SOURCE_UNAVAILABLE] data source unavailable: connection refused"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrNoMultiple, ErrNoMultiple) {
		t.Error("same error should match")
	}
	wrapped := WrapError(ErrNoEarnings, errors.New("empty"))
	if !errors.Is(wrapped, ErrNoEarnings) {
		t.Error("wrapped error should match its base by code")
	}
	if errors.Is(wrapped, ErrNoMultiple) {
		t.Error("different codes should not match")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrSchemaMismatch, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrSchemaMismatch.Code {
		t.Error("code not preserved")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrDegenerate, "DEGENERATE"},
		{fmt.Errorf("evaluate: %w", ErrNoPriceHistory), "NO_PRICE_HISTORY"},
		{errors.New("plain"), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
