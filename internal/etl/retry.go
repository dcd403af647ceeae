package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/datamover/internal/errors"
)

var (
	// ErrRunAborted marks runs stopped by a fatal error.
	ErrRunAborted = errors.NewStd("run aborted")
	// ErrRunAbandoned marks runs given up after the single rate-limit backoff.
	ErrRunAbandoned = errors.NewStd("run abandoned after backoff")
)

// RateLimitedError reports provider throttling. RetryAfter is the delay the
// provider asked for, zero when it did not say.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// ErrorCategory lets the errors package classify throttling without string matching.
func (e *RateLimitedError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryRateLimit
}

// IsRateLimited reports whether err carries a RateLimitedError and returns its delay.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Controller turns errors into run outcomes and executes the single backoff.
// It never loops: a throttled run sleeps once and is then abandoned.
type Controller struct {
	defaultDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewController creates a controller. defaultDelay applies when a provider
// throttles without suggesting a delay.
func NewController(defaultDelay time.Duration) *Controller {
	if defaultDelay <= 0 {
		defaultDelay = time.Second
	}
	return &Controller{defaultDelay: defaultDelay, sleep: sleepContext}
}

// WithSleeper replaces the sleep function. Tests use it to avoid real waits.
func (c *Controller) WithSleeper(fn func(ctx context.Context, d time.Duration) error) *Controller {
	c.sleep = fn
	return c
}

// Classify maps an error from source or sink access to an outcome.
func (c *Controller) Classify(err error) Outcome {
	if err == nil {
		return Continue("")
	}
	if delay, ok := IsRateLimited(err); ok {
		if delay <= 0 {
			delay = c.defaultDelay
		}
		return RetryAfter(delay, err)
	}
	return AbortRun(err)
}

// Resolve executes a terminal outcome and returns the error that ends the run.
// Continue resolves to nil.
func (c *Controller) Resolve(ctx context.Context, o Outcome) error {
	switch o.Decision {
	case DecisionContinue:
		return nil
	case DecisionRetryAfter:
		GetLogger().Warn("source throttled, backing off once before abandoning run",
			logDuration("delay", o.Delay),
			logError(o.Reason))
		if err := c.sleep(ctx, o.Delay); err != nil {
			return fmt.Errorf("%w: backoff interrupted: %w", ErrRunAbandoned, errors.Join(err, o.Reason))
		}
		return fmt.Errorf("%w after %s: %w", ErrRunAbandoned, o.Delay, o.Reason)
	default:
		if o.Reason == nil {
			return ErrRunAborted
		}
		return fmt.Errorf("%w: %w", ErrRunAborted, o.Reason)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
