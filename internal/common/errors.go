// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Wrap them with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	// ErrStorage indicates the persistence collaborator failed a read or write.
	ErrStorage = errors.New("storage failure")
	// ErrUnauthorized indicates no authenticated user is present in the context.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation indicates a user-facing rejection that must not be retried.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrPatternDetection indicates transaction analysis could not be completed.
	ErrPatternDetection = errors.New("pattern detection failed")

	// ErrDuplicateEntry indicates a uniqueness constraint was hit.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrChallengeNotActive indicates a terminal transition lost the race to another writer.
	ErrChallengeNotActive = errors.New("challenge is no longer active")

	// Provider errors.
	ErrProviderConnection = errors.New("provider connection failed")
	ErrProviderRateLimit  = errors.New("provider rate limit exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// StorageError wraps err as a storage failure unless it already is one.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrProviderRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
