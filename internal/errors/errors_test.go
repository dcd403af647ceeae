package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	ee := Newf("purge of %d ids failed", 3).
		Component("archive").
		Category(CategoryPurge).
		Priority(PriorityCritical).
		BatchContext("archive", 2, 1000).
		Build()

	assert.Equal(t, "archive", ee.GetComponent())
	assert.Equal(t, CategoryPurge, ee.Category)
	assert.Equal(t, PriorityCritical, ee.Priority)
	ctx := ee.GetContext()
	assert.Equal(t, "archive", ctx["pipeline"])
	assert.Equal(t, 2, ctx["batch"])
	assert.Equal(t, 1000, ctx["batch_size"])
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := Newf("x").Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestWrappedErrorsRemainMatchable(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	ee := New(fmt.Errorf("outer: %w", sentinel)).Category(CategoryDatabase).Build()
	wrapped := fmt.Errorf("run: %w", ee)

	require.ErrorIs(t, wrapped, sentinel)
	assert.True(t, IsCategory(wrapped, CategoryDatabase))
	assert.False(t, IsCategory(wrapped, CategoryNetwork))
}

type fakeReporter struct {
	reported []*EnhancedError
}

func (f *fakeReporter) ReportError(ee *EnhancedError) {
	f.reported = append(f.reported, ee)
	ee.MarkReported()
}
func (f *fakeReporter) IsEnabled() bool { return true }

func TestActiveReportingDetectsCategory(t *testing.T) {
	reporter := &fakeReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := Newf("429 too many requests").Component("docsource").Build()

	assert.Equal(t, CategoryRateLimit, ee.Category)
	require.Len(t, reporter.reported, 1)
	assert.True(t, ee.IsReported())
}

func TestScrubMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		absent  string
		present string
	}{
		{"url query", "GET https://cosmos.example.com/docs?sig=abc123 failed", "abc123", "?[REDACTED]"},
		{"connection string", "DefaultEndpointsProtocol=https;AccountName=x;AccountKey=c2VjcmV0;", "c2VjcmV0", "AccountKey=[REDACTED]"},
		{"dsn userinfo", "dial postgres://app:hunter2@db:5432/orders", "hunter2", "postgres://[REDACTED]@"},
		{"token", "auth failed token=deadbeef", "deadbeef", "token=[REDACTED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scrubMessage(tt.in)
			assert.NotContains(t, got, tt.absent)
			assert.Contains(t, got, tt.present)
		})
	}
}
