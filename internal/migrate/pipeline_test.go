package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

func newTestPipeline(t *testing.T, cfg Config, source Source, sink Sink) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, source, sink, nil)
	require.NoError(t, err)
	return p
}

func TestMigrateDuplicateScenario(t *testing.T) {
	t.Parallel()

	// X exists in the sink, Y does not
	sink := newMemorySink(ProductRow{ID: "X"})
	source := &pagedSource{docs: []etl.Record{
		product("X", "red"),
		product("Y", "blue", "large"),
	}}

	report, err := newTestPipeline(t, Config{}, source, sink).Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, etl.StatusCompleted, report.Status)
	assert.Equal(t, 2, report.RecordsRead)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.SkippedExisting)
	assert.Equal(t, 3, report.ChildRowsInserted)
	assert.Zero(t, report.Failures)

	assert.Equal(t, []string{"X", "Y"}, sink.productIDs())
	assert.Contains(t, sink.tags, TagRow{ProductID: "X", Tag: "red"}, "tags of the conflicting product are still written")
	assert.Equal(t, 1, sink.bulkCalls)
	assert.Equal(t, 2, sink.rowCalls)
}

func TestMigrateRerunIsIdempotentForProducts(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	docs := []etl.Record{product("a"), product("b"), product("c")}

	first, err := newTestPipeline(t, Config{BatchSize: 2}, &pagedSource{docs: docs}, sink).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := newTestPipeline(t, Config{BatchSize: 2}, &pagedSource{docs: docs}, sink).Run(t.Context())
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 3, second.SkippedExisting)
	assert.Equal(t, []string{"a", "b", "c"}, sink.productIDs())
}

func TestMigrateIsolatesBadRecord(t *testing.T) {
	t.Parallel()

	docs := make([]etl.Record, 0, 1000)
	for i := range 1000 {
		docs = append(docs, product(fmt.Sprintf("p%04d", i)))
	}
	docs[500] = etl.Record{"name": "no id"}

	sink := newMemorySink()
	report, err := newTestPipeline(t, Config{BatchSize: 1000}, &pagedSource{docs: docs}, sink).Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1000, report.RecordsRead)
	assert.Equal(t, 999, report.Inserted)
	assert.Equal(t, 1, report.Failures)
	assert.Zero(t, report.BatchFailures)
	assert.Len(t, sink.productIDs(), 999)
}

func TestMigrateBatchFailureRollsBackAndContinues(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	sink.failBatch = map[int]error{0: fmt.Errorf("connection reset")}
	source := &pagedSource{docs: []etl.Record{
		product("a", "t1"), {"id": ""}, product("b"),
		product("c"), product("d"), product("e"),
	}}

	report, err := newTestPipeline(t, Config{BatchSize: 3}, source, sink).Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, etl.StatusCompleted, report.Status)
	assert.Equal(t, 6, report.RecordsRead)
	assert.Equal(t, 1, report.BatchFailures)
	assert.Equal(t, 3, report.Failures, "one mapping failure plus the two rolled back records")
	assert.Equal(t, 3, report.Inserted)
	assert.Zero(t, report.ChildRowsInserted)
	assert.Equal(t, []string{"c", "d", "e"}, sink.productIDs())
	assert.Equal(t, 1, sink.rollbacks)
	assert.Equal(t, 1, sink.commits)
	assert.Empty(t, sink.tags)
}

func TestMigrateTagFailureRollsBackProducts(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	sink.tagErr = fmt.Errorf("tag table missing")

	report, err := newTestPipeline(t, Config{}, &pagedSource{docs: []etl.Record{product("a", "x")}}, sink).Run(t.Context())
	require.NoError(t, err)

	assert.Empty(t, sink.productIDs())
	assert.Equal(t, 1, report.Failures)
	assert.Zero(t, report.Inserted)
}

func TestMigrateBeginFailureCountsBatch(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	sink.beginErr = fmt.Errorf("pool exhausted")

	report, err := newTestPipeline(t, Config{}, &pagedSource{docs: []etl.Record{product("a"), product("b")}}, sink).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.BatchFailures)
	assert.Equal(t, 2, report.Failures)
}

func TestMigrateRateLimitAbandonsRun(t *testing.T) {
	t.Parallel()

	source := &pagedSource{
		docs:    []etl.Record{product("a"), product("b"), product("c")},
		errOnce: map[int]error{1: &etl.RateLimitedError{RetryAfter: 1500 * time.Millisecond}},
	}
	sink := newMemorySink()

	var slept []time.Duration
	cfg := Config{
		BatchSize: 2,
		Sleeper: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	report, err := newTestPipeline(t, cfg, source, sink).Run(t.Context())
	require.ErrorIs(t, err, etl.ErrRunAbandoned)

	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, slept)
	assert.Equal(t, etl.StatusAbandoned, report.Status)
	assert.Equal(t, 2, report.Inserted, "work before the throttle is kept")
	assert.Equal(t, 2, source.reads, "no retry after the backoff")
}

func TestMigrateRateLimitUsesDefaultDelay(t *testing.T) {
	t.Parallel()

	source := &pagedSource{errOnce: map[int]error{0: &etl.RateLimitedError{}}}
	var slept time.Duration
	cfg := Config{
		DefaultRetryAfter: 3 * time.Second,
		Sleeper: func(_ context.Context, d time.Duration) error {
			slept = d
			return nil
		},
	}

	_, err := newTestPipeline(t, cfg, source, newMemorySink()).Run(t.Context())
	require.ErrorIs(t, err, etl.ErrRunAbandoned)
	assert.Equal(t, 3*time.Second, slept)
}

func TestMigrateSourceErrorAborts(t *testing.T) {
	t.Parallel()

	source := &pagedSource{errOnce: map[int]error{0: fmt.Errorf("unauthorized")}}
	report, err := newTestPipeline(t, Config{}, source, newMemorySink()).Run(t.Context())
	require.ErrorIs(t, err, etl.ErrRunAborted)
	assert.Equal(t, etl.StatusAborted, report.Status)
	assert.Contains(t, report.Error, "unauthorized")
}

func TestMigrateEmptySource(t *testing.T) {
	t.Parallel()

	report, err := newTestPipeline(t, Config{}, &pagedSource{}, newMemorySink()).Run(t.Context())
	require.NoError(t, err)
	assert.Zero(t, report.RecordsRead)
	assert.Zero(t, report.Batches)
}

func TestNewPipelineRequiresStores(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(Config{}, nil, newMemorySink(), nil)
	require.Error(t, err)
}

func TestBatchErrorCarriesBatchContext(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("connection reset")
	err := batchError(cause, 3, 100)
	require.ErrorIs(t, err, cause)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryTransaction, ee.Category)
	assert.Equal(t, "migrate", ee.GetComponent())
	assert.Equal(t, 3, ee.GetContext()["batch"])
	assert.Equal(t, 100, ee.GetContext()["batch_size"])
}
