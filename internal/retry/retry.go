// Package retry provides bounded retries with jittered exponential backoff
// for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when max retry attempts are exceeded.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Default retry parameters.
const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 50 * time.Millisecond
	defaultMaxDelay     = 2 * time.Second
	defaultMultiplier   = 2.0
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// IsRetryable decides whether an error should be retried.
	// A nil IsRetryable retries every error.
	IsRetryable func(error) bool
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
	}
}

// Do executes fn with retries and jittered exponential backoff.
// It returns nil on the first success, the original error when it is not
// retryable, and ErrMaxAttemptsExceeded wrapping the last error otherwise.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaultMultiplier
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if cfg.IsRetryable != nil && !cfg.IsRetryable(err) {
			return err
		}

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(backoffDelay(cfg, attempt)):
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}

// backoffDelay computes the jittered delay for the given attempt number.
// Jitter is uniform in [delay/2, delay] to avoid thundering herds.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
