package objectstore

import (
	"context"
	"os"
	"strings"
	"time"
)

// Retry defaults for remote stores.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
	DefaultTimeout      = 30 * time.Second
)

// transientErrorPatterns contains substrings that indicate a retriable error
var transientErrorPatterns = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"timeout",
	"temporary",
	"broken pipe",
	"no route to host",
	"EOF",
	"ssh: handshake failed",
	"resource temporarily unavailable",
}

// IsTransientError reports whether err is likely to go away on retry.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsTimeout(err) {
		return true
	}
	errStr := err.Error()
	for _, pattern := range transientErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// retryConfig controls withRetry.
type retryConfig struct {
	maxRetries int
	backoff    time.Duration
	onRetry    func(err error, attempt int)
}

// withRetry runs op until it succeeds, fails permanently, or the attempts
// are used up. Backoff grows linearly. Uploads are retried under the same
// key, so a retry overwrites any partial object.
func withRetry(ctx context.Context, cfg retryConfig, op func() error) error {
	attempts := max(cfg.maxRetries, 1)
	var lastErr error

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransientError(err) || attempt == attempts-1 {
			break
		}
		if cfg.onRetry != nil {
			cfg.onRetry(err, attempt+1)
		}

		timer := time.NewTimer(cfg.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
