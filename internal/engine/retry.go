package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Retry backoff bounds. A step's retryCount caps the number of re-attempts;
// the delay grows exponentially from baseBackoff up to maxBackoff.
const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// IsRetryableError classifies whether a step failure should be retried.
// Retryable by default: network errors, timeouts, transient agent failures.
// Non-retryable: validation errors, cancellation, typed ChainErrors whose
// code marks a permanent condition.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Step deadline expiry is retryable; the next attempt gets a fresh timer.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Context cancelled means the execution is being torn down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// ChainError checks its own code. STEP_FAILED is only a wrapper around
	// the agent's own failure; classify the wrapped cause instead, so a
	// non-retryable agent error stays non-retryable.
	var cerr *schema.ChainError
	if errors.As(err, &cerr) {
		if cerr.Code == schema.ErrCodeStepFailed && cerr.Cause != nil {
			return IsRetryableError(cerr.Cause)
		}
		return cerr.IsRetryable()
	}

	// Network errors are retryable.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common transient patterns.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"rate limit",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable — the step's retryCount bounds the attempts.
	return true
}

// ComputeBackoff returns the delay before retry attempt n (0-based):
// base * 2^n, capped at maxBackoff.
func ComputeBackoff(attempt int) time.Duration {
	delay := baseBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// WaitForBackoff sleeps for the given delay or returns early if the context
// is cancelled during the wait.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
