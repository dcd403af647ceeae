package etl

import (
	"time"

	"github.com/tphakala/datamover/internal/errors"
)

// RunStats accumulates counters for one run. It is a value: batch steps
// receive the current stats and return the updated copy.
type RunStats struct {
	RecordsRead       int
	Inserted          int // primary rows written, or records archived
	SkippedExisting   int
	ChildRowsInserted int
	Failures          int // records that could not be mapped or written
	BatchFailures     int
	Batches           int
	ObjectsWritten    int
	RecordsPurged     int
}

// Add returns the sum of s and d.
func (s RunStats) Add(d RunStats) RunStats {
	s.RecordsRead += d.RecordsRead
	s.Inserted += d.Inserted
	s.SkippedExisting += d.SkippedExisting
	s.ChildRowsInserted += d.ChildRowsInserted
	s.Failures += d.Failures
	s.BatchFailures += d.BatchFailures
	s.Batches += d.Batches
	s.ObjectsWritten += d.ObjectsWritten
	s.RecordsPurged += d.RecordsPurged
	return s
}

// Consistent reports whether every accounted record was also read.
func (s RunStats) Consistent() bool {
	return s.Inserted+s.SkippedExisting+s.Failures <= s.RecordsRead
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusAbandoned Status = "abandoned"
	StatusFailed    Status = "failed" // could not start
)

// Report is the summary emitted once per run.
type Report struct {
	RunID             string    `json:"runId" yaml:"runId"`
	Pipeline          string    `json:"pipeline" yaml:"pipeline"`
	Status            Status    `json:"status" yaml:"status"`
	StartedAt         time.Time `json:"startedAt" yaml:"startedAt"`
	DurationSeconds   float64   `json:"durationSeconds" yaml:"durationSeconds"`
	RecordsRead       int       `json:"recordsRead" yaml:"recordsRead"`
	Inserted          int       `json:"inserted" yaml:"inserted"`
	SkippedExisting   int       `json:"skippedExisting" yaml:"skippedExisting"`
	ChildRowsInserted int       `json:"childRowsInserted" yaml:"childRowsInserted"`
	Failures          int       `json:"failures" yaml:"failures"`
	BatchFailures     int       `json:"batchFailures" yaml:"batchFailures"`
	Batches           int       `json:"batches" yaml:"batches"`
	ObjectsWritten    int       `json:"objectsWritten" yaml:"objectsWritten"`
	RecordsPurged     int       `json:"recordsPurged" yaml:"recordsPurged"`
	Error             string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport builds the run summary from the final stats and the error that
// ended the run, if any.
func NewReport(runID, pipeline string, started, finished time.Time, stats RunStats, runErr error) Report {
	r := Report{
		RunID:             runID,
		Pipeline:          pipeline,
		Status:            StatusFromError(runErr),
		StartedAt:         started.UTC(),
		DurationSeconds:   finished.Sub(started).Seconds(),
		RecordsRead:       stats.RecordsRead,
		Inserted:          stats.Inserted,
		SkippedExisting:   stats.SkippedExisting,
		ChildRowsInserted: stats.ChildRowsInserted,
		Failures:          stats.Failures,
		BatchFailures:     stats.BatchFailures,
		Batches:           stats.Batches,
		ObjectsWritten:    stats.ObjectsWritten,
		RecordsPurged:     stats.RecordsPurged,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// FailedReport describes a run that could not start, e.g. on bad configuration.
func FailedReport(runID, pipeline string, started time.Time, err error) Report {
	r := NewReport(runID, pipeline, started, started, RunStats{}, err)
	r.Status = StatusFailed
	return r
}

// StatusFromError maps the error that ended a run to its status.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, ErrRunAbandoned):
		return StatusAbandoned
	default:
		return StatusAborted
	}
}
