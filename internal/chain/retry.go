package chain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
}

// DetectRetryConfig returns the retry configuration used when enumerating
// and opening the physical device: 3 attempts with delays 500ms, 1s.
func DetectRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retry executes the operation with exponential backoff.
// Only errors classified by kkerr.IsRetryable trigger another attempt.
func Retry[T any](ctx context.Context, cfg RetryConfig, operation func(context.Context) (T, error)) (T, error) {
	var result T
	var err error

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation(ctx)
		if err == nil {
			return result, nil
		}

		if !kkerr.IsRetryable(err) {
			return result, err
		}

		// No delay after the last attempt
		if attempt < attempts-1 {
			timer := time.NewTimer(backoff(attempt, cfg.BaseDelay, cfg.MaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// backoff returns the delay before the next attempt: 2^attempt * base capped
// at maxDelay, jittered into [delay/2, delay).
func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base * (1 << attempt)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}
