package watch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WaitError represents a failed completion wait.
//
// Wait failures include:
//   - No targets: the caller supplied nothing to watch
//   - Timeout: one or more targets never stabilized in time
//
// WaitError includes the final observed sizes so callers can report
// how far the transfer got before the wait gave up.
type WaitError struct {
	// Code identifies the failure category.
	Code WaitErrorCode

	// Message is a human-readable description.
	Message string

	// Sizes holds the last observed size per target.
	Sizes Sizes

	// Timeout is the configured wait bound (for timeout errors).
	Timeout time.Duration

	// Pending lists targets that never stabilized, in declaration
	// order (for timeout errors).
	Pending []string
}

// WaitErrorCode categorizes wait failures.
type WaitErrorCode string

const (
	// ErrCodeNoTargets indicates Wait was called with no targets.
	ErrCodeNoTargets WaitErrorCode = "NO_TARGETS"

	// ErrCodeTimeout indicates the transfer never stabilized within
	// the configured timeout.
	ErrCodeTimeout WaitErrorCode = "WAIT_TIMEOUT"
)

// Error implements the error interface.
func (e *WaitError) Error() string {
	if len(e.Pending) > 0 {
		return fmt.Sprintf("%s: %s (pending=%s, sizes=%s)",
			e.Code, e.Message, strings.Join(e.Pending, ","), e.Sizes)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoTargets returns true if the error is a no-targets error.
// Uses errors.As to handle wrapped errors.
func IsNoTargets(err error) bool {
	var we *WaitError
	if errors.As(err, &we) {
		return we.Code == ErrCodeNoTargets
	}
	return false
}

// IsTimeout returns true if the error is a wait timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var we *WaitError
	if errors.As(err, &we) {
		return we.Code == ErrCodeTimeout
	}
	return false
}

// NewNoTargetsError creates a WaitError for an empty target set.
func NewNoTargetsError() *WaitError {
	return &WaitError{
		Code:    ErrCodeNoTargets,
		Message: "no targets to watch",
	}
}

// NewTimeoutError creates a WaitError for an expired wait.
func NewTimeoutError(sizes Sizes, timeout time.Duration, pending []string) *WaitError {
	return &WaitError{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("transfer did not stabilize within %s", timeout),
		Sizes:   sizes,
		Timeout: timeout,
		Pending: pending,
	}
}
