package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	// ErrTransient indicates a temporary error that should be retried
	ErrTransient = errors.New("transient error")

	// ErrPermanent indicates a permanent error that should not be retried
	ErrPermanent = errors.New("permanent error")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates authentication failure
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("timeout")

	// ErrRateLimit indicates rate limiting by the analyzer backend
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrSyntax indicates the submitted snippet is not parseable Python
	ErrSyntax = errors.New("invalid python code")
)

// TransientError wraps an error to mark it as transient (retryable)
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %v", e.Cause)
	}
	return "transient error"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a new transient error
func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// NewTransientf creates a new transient error with formatting
func NewTransientf(format string, args ...interface{}) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

// PermanentError wraps an error to mark it as permanent (not retryable)
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent error: %v", e.Cause)
	}
	return "permanent error"
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// NewPermanent creates a new permanent error
func NewPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Cause: err}
}

// NewPermanentf creates a new permanent error with formatting
func NewPermanentf(format string, args ...interface{}) error {
	return &PermanentError{Cause: fmt.Errorf(format, args...)}
}

// IsTransient checks if an error is transient using errors.As
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check if explicitly marked as transient
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	// Check if explicitly marked as permanent
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Check for known sentinel errors
	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrSyntax) {
		return false
	}

	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) {
		return true
	}

	// Default to non-transient for safety (don't retry unknown errors)
	return false
}

// IsPermanent checks if an error is permanent (not retryable)
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// IsSyntax checks if an error indicates unparseable input
func IsSyntax(err error) bool {
	return err != nil && errors.Is(err, ErrSyntax)
}

// ClassifyAnalyzerError wraps errors coming back from the analyzer backend as
// transient or permanent based on the failure mode. Network-level failures and
// throttling are worth retrying; authentication and malformed-request failures
// are not. Errors that are already classified pass through unchanged.
func ClassifyAnalyzerError(err error) error {
	if err == nil {
		return nil
	}

	var transientErr *TransientError
	var permanentErr *PermanentError
	if errors.As(err, &transientErr) || errors.As(err, &permanentErr) {
		return err
	}

	msg := strings.ToLower(err.Error())

	permanentPatterns := []string{
		"unauthorized",
		"invalid api key",
		"invalid_api_key",
		"authentication",
		"permission denied",
		"forbidden",
		"model not found",
		"invalid request",
		"context length",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(msg, pattern) {
			return NewPermanent(err)
		}
	}

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"too many requests",
		"rate limit",
		"service unavailable",
		"gateway timeout",
		"bad gateway",
		"dial tcp",
		"i/o timeout",
		"overloaded",
		"eof",
		"broken pipe",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return NewTransient(err)
		}
	}

	// Unknown analyzer failures default to transient: the backend is a remote
	// service and a second attempt is cheap compared to losing the task.
	return NewTransient(err)
}
