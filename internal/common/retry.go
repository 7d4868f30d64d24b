package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/Veraticus/spendlens/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry executes an operation with exponential backoff capped at MaxDelay.
// Only errors classified by IsRetryable are retried.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			return operation()
		},
		retry.Context(ctx),
		retry.Attempts(uint(opts.MaxAttempts)),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderRateLimit) {
				return opts.MaxDelay
			}
			return BackoffDelay(n, opts)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Operation failed, retrying",
				"attempt", n+1,
				"max_attempts", opts.MaxAttempts,
				"error", err)
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if attempts >= opts.MaxAttempts && IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempts, err)
	}
	return err
}

// BackoffDelay returns the delay before retry n (zero-based).
func BackoffDelay(n uint, opts service.RetryOptions) time.Duration {
	delay := float64(opts.InitialDelay)
	for i := uint(0); i < n; i++ {
		delay *= opts.Multiplier
		if delay >= float64(opts.MaxDelay) {
			return opts.MaxDelay
		}
	}
	return time.Duration(delay)
}
