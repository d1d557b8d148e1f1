package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radixinsight/analytics/internal/retry"
)

// fastConfig keeps test backoff delays negligible.
func fastConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), fastConfig(), func() error {
		attempts++
		return errors.New("always fails")
	})

	if !errors.Is(err, retry.ErrMaxAttemptsExceeded) {
		t.Fatalf("expected ErrMaxAttemptsExceeded, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")

	cfg := fastConfig()
	cfg.IsRetryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := retry.Do(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, fastConfig(), func() error {
		return errors.New("transient")
	})

	if !errors.Is(err, retry.ErrContextCancelled) {
		t.Fatalf("expected ErrContextCancelled, got %v", err)
	}
}
