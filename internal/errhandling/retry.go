package errhandling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Default retry configuration values
const (
	DefaultDelayMs           = 500
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelayMs        = 10000
	MaxRetryAttempts         = 10
)

// RetryConfig holds the re-fetch policy a caller may opt into.
// Collections never retry on their own; the CLI and the scheduler use this
// to decide whether to issue another fetch after a failure.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retries after the first attempt (0 = no retry).
	MaxAttempts int

	// DelayMs is the initial delay between retries in milliseconds.
	DelayMs int

	// BackoffMultiplier is the multiplier for exponential backoff (>= 1).
	BackoffMultiplier float64

	// MaxDelayMs caps the delay between retries in milliseconds.
	MaxDelayMs int
}

// DefaultRetryConfig returns a configuration with retries disabled and
// default backoff parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		DelayMs:           DefaultDelayMs,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelayMs:        DefaultMaxDelayMs,
	}
}

// Validate validates the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return errors.New("maxAttempts must be >= 0")
	}
	if c.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if c.DelayMs < 0 {
		return errors.New("delayMs must be >= 0")
	}
	if c.BackoffMultiplier < 1 {
		return errors.New("backoffMultiplier must be >= 1")
	}
	if c.MaxDelayMs < 0 {
		return errors.New("maxDelayMs must be >= 0")
	}
	return nil
}

// CalculateDelay calculates the retry delay for a given attempt using exponential backoff.
// The formula is: min(delayMs * (backoffMultiplier ^ attempt), maxDelayMs)
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delayMs := float64(c.DelayMs) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if delayMs > float64(c.MaxDelayMs) {
		delayMs = float64(c.MaxDelayMs)
	}

	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry reports whether another attempt should follow a failed attempt.
// Aborted and fatal errors are never retried.
func (c RetryConfig) ShouldRetry(attempt int, err error) bool {
	if err == nil || c.MaxAttempts == 0 || attempt >= c.MaxAttempts {
		return false
	}
	if IsAborted(err) {
		return false
	}
	return IsRetryable(err)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// configured attempts are exhausted. onRetry, if non-nil, is called before
// each wait with the failed attempt number (0-indexed), its error and the delay.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error, onRetry func(attempt int, err error, delay time.Duration)) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return ClassifyNetworkError(err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !cfg.ShouldRetry(attempt, err) {
			return err
		}

		delay := cfg.CalculateDelay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ClassifyNetworkError(ctx.Err())
		case <-timer.C:
		}
	}
}
