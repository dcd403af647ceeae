package etl

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/datamover/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	ctrl := NewController(time.Second)
	plain := errors.NewStd("connection reset")

	tests := []struct {
		name     string
		err      error
		decision Decision
		delay    time.Duration
	}{
		{"nil continues", nil, DecisionContinue, 0},
		{"plain error aborts", plain, DecisionAbort, 0},
		{"rate limit with hint", &RateLimitedError{RetryAfter: 3 * time.Second}, DecisionRetryAfter, 3 * time.Second},
		{"rate limit without hint", &RateLimitedError{}, DecisionRetryAfter, time.Second},
		{"wrapped rate limit", fmt.Errorf("read page: %w", &RateLimitedError{RetryAfter: 500 * time.Millisecond}), DecisionRetryAfter, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := ctrl.Classify(tt.err)
			assert.Equal(t, tt.decision, o.Decision)
			assert.Equal(t, tt.delay, o.Delay)
		})
	}
}

func TestResolveRetryAfterSleepsExactlyOnce(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	ctrl := NewController(time.Second).WithSleeper(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	err := ctrl.Resolve(t.Context(), ctrl.Classify(&RateLimitedError{}))
	require.ErrorIs(t, err, ErrRunAbandoned)
	assert.Equal(t, []time.Duration{time.Second}, slept)

	_, limited := IsRateLimited(err)
	assert.True(t, limited)
}

func TestResolveBackoffInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	ctrl := NewController(time.Hour)
	err := ctrl.Resolve(ctx, RetryAfter(time.Hour, &RateLimitedError{}))
	require.ErrorIs(t, err, ErrRunAbandoned)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolveAbortAndContinue(t *testing.T) {
	t.Parallel()

	ctrl := NewController(0)
	require.NoError(t, ctrl.Resolve(t.Context(), Continue("42")))

	reason := errors.NewStd("boom")
	err := ctrl.Resolve(t.Context(), AbortRun(reason))
	require.ErrorIs(t, err, ErrRunAborted)
	require.ErrorIs(t, err, reason)
	assert.Equal(t, StatusAborted, StatusFromError(err))
}

func TestRateLimitedErrorCategory(t *testing.T) {
	t.Parallel()

	err := errors.New(&RateLimitedError{RetryAfter: time.Second}).Build()
	_, ok := IsRateLimited(err)
	assert.True(t, ok)
	assert.Contains(t, err.Error(), "retry after 1s")
}
