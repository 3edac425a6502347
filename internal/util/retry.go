//nolint:revive // util is a common package name for shared utilities
package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds configuration for retry operations.
type RetryConfig struct {
	MaxRetries int
	RetryDelay float64
}

// retryable is implemented by domain errors that advise whether a retry
// could succeed.
type retryable interface {
	IsRetryable() bool
}

// WithRetry wraps an operation with a backoff-based retry loop. Core
// components never retry internally; this helper is for callers that decide
// a failed ensure/download is worth retrying.
func WithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.RetryDelay * float64(time.Second))
	b.MaxInterval = time.Duration(cfg.RetryDelay * 10 * float64(time.Second))
	b.Reset()

	// Use a counter to respect MaxRetries while using exponential backoff for delays
	attempt := 0
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		// Don't retry if the error says retrying cannot succeed
		var r retryable
		if errors.As(err, &r) && !r.IsRetryable() {
			return backoff.Permanent(err)
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(b, ctx))
}
