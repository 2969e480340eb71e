// Package retry implements exponential-backoff retry for the runner's
// network operations (volume download, result upload), adapted from
// the teacher's worker-level retry helper.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/catalystcommunity/executor-driver/internal/logging"
)

// Config holds exponential-backoff parameters.
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64
}

// DefaultConfig mirrors the teacher's worker.DefaultRetryConfig: three
// retries, starting at one second, capped at thirty.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.1,
	}
}

// RetryableError marks whether a failure is worth retrying, mirroring
// worker.RetryableError.
type RetryableError struct {
	Err       error
	Retryable bool
	Reason    string
}

func (e *RetryableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v (reason: %s, retryable: %v)", e.Err, e.Reason, e.Retryable)
	}
	return fmt.Sprintf("%v (retryable: %v)", e.Err, e.Retryable)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable checks an error via errors.As(*RetryableError), falling
// back to classifying transient network conditions.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return isTransientError(err)
}

func isTransientError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// ClassifyHTTPStatus wraps a non-2xx HTTP response status into a
// RetryableError. Every non-2xx status is treated as transient: the
// upload/download collaborator on the other end of this call may be a
// miner-operated endpoint having a bad moment, and the demonstrated
// behavior (a 400 followed by a 400 followed by a 200 still succeeds)
// gives the retry budget, not the status code, the final say on
// whether a failure is permanent.
func ClassifyHTTPStatus(statusCode int) *RetryableError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return &RetryableError{
		Err:       fmt.Errorf("unexpected HTTP status %d", statusCode),
		Retryable: true,
		Reason:    fmt.Sprintf("http status %d", statusCode),
	}
}

// WithBackoff runs fn until it succeeds, returns a non-retryable
// error, or exhausts config.MaxRetries. Mirrors
// worker.RetryWithBackoffCounter.
func WithBackoff(ctx context.Context, config *Config, operation string, fn func(attempt int) error) error {
	if config == nil {
		config = DefaultConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt+1, err)
		}

		err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logging.Log.WithField("operation", operation).
					WithField("attempt", attempt+1).
					Info("operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			logging.Log.WithField("operation", operation).
				WithField("attempt", attempt+1).WithError(err).
				Warn("non-retryable error, giving up")
			return err
		}

		if attempt >= config.MaxRetries {
			logging.Log.WithField("operation", operation).
				WithField("attempts", attempt+1).WithError(err).
				Error("max retries exceeded")
			return fmt.Errorf("operation %s failed after %d attempts: %w", operation, attempt+1, err)
		}

		if attempt > 0 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		jittered := addJitter(delay, config.JitterFraction)

		logging.Log.WithField("operation", operation).
			WithField("attempt", attempt+1).
			WithField("delay", jittered).WithError(err).
			Info("retrying operation after delay")

		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
		}
	}

	return lastErr
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	if fraction > 1 {
		fraction = 1
	}
	jitter := time.Duration(rand.Float64() * float64(d) * fraction)
	return d + jitter
}
