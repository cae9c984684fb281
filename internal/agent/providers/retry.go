package providers

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// withRetries runs attempt up to maxRetries+1 times, backing off
// exponentially between transient failures. Non-retryable errors and
// context cancellation abort immediately.
func withRetries(ctx context.Context, maxRetries int, baseDelay time.Duration, attempt func() error) error {
	var err error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			backoff := baseDelay * time.Duration(math.Pow(2, float64(i-1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err = attempt()
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}

// isRetryableError classifies transient failures worth retrying. Rate
// limits, 5xx responses, timeouts, and connection drops are transient;
// auth and validation errors are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") {
		return true
	}
	if strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "gateway timeout") {
		return true
	}
	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}
