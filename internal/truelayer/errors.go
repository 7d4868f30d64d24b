package truelayer

import (
	"errors"
	"fmt"
)

// Provider-specific errors.
var (
	// ErrNotConfigured is returned when TrueLayer credentials are not set.
	ErrNotConfigured = errors.New("truelayer: provider not configured")
	// ErrInvalidToken is returned when the access token is invalid or expired.
	ErrInvalidToken = errors.New("truelayer: invalid or expired access token")
	// ErrConsentRequired is returned when the user's consent has lapsed.
	ErrConsentRequired = errors.New("truelayer: user consent required")
	// ErrNoAccount is returned when a fetcher has no account to read.
	ErrNoAccount = errors.New("truelayer: no account selected")
)

// APIError represents an error from the TrueLayer API.
type APIError struct {
	ErrorType  string
	Message    string
	RequestID  string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("truelayer API error: %s (status=%d, type=%s, request_id=%s)",
		e.Message, e.StatusCode, e.ErrorType, e.RequestID)
}

// IsRetryable returns true if the error might succeed on retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
