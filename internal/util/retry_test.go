package util_test

import (
	"context"
	"errors"
	"testing"

	"codeops/internal/domain"
	"codeops/internal/util"
)

var fastRetry = util.RetryConfig{MaxRetries: 3, RetryDelay: 0.01}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := util.WithRetry(context.Background(), fastRetry, func() error {
		attempts++
		if attempts < 3 {
			return &domain.DownloadError{Kind: domain.DownloadNetwork}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	wantErr := &domain.ResolveError{Kind: domain.ResolveNotFound, Version: "v9.9.9"}
	err := util.WithRetry(context.Background(), fastRetry, func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithRetry error = %v, want wrapped %v", err, wantErr)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (not retryable)", attempts)
	}
}

func TestWithRetryRespectsMaxRetries(t *testing.T) {
	attempts := 0
	err := util.WithRetry(context.Background(), util.RetryConfig{MaxRetries: 2, RetryDelay: 0.01}, func() error {
		attempts++
		return &domain.DownloadError{Kind: domain.DownloadNetwork}
	})
	if err == nil {
		t.Fatal("WithRetry should fail after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := util.WithRetry(ctx, util.RetryConfig{MaxRetries: 100, RetryDelay: 0.05}, func() error {
		attempts++
		cancel()
		return &domain.DownloadError{Kind: domain.DownloadNetwork}
	})
	if err == nil {
		t.Fatal("WithRetry should return after context cancellation")
	}
	if attempts > 2 {
		t.Errorf("attempts = %d, want at most 2 after cancellation", attempts)
	}
}

func TestWithRetryTreatsPlainErrorsAsRetryable(t *testing.T) {
	attempts := 0
	err := util.WithRetry(context.Background(), util.RetryConfig{MaxRetries: 1, RetryDelay: 0.01}, func() error {
		attempts++
		return errors.New("untyped failure")
	})
	if err == nil {
		t.Fatal("WithRetry should surface the final error")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
