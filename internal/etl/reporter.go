package etl

import (
	"fmt"
	"time"

	"github.com/tphakala/datamover/internal/logger"
)

// Recorder receives pipeline measurements. The metrics package implements it.
type Recorder interface {
	ObserveBatch(pipeline string, outcome string, duration time.Duration)
	ObserveRun(report Report)
}

// Reporter emits the run summary. Emit never fails: problems in a recorder
// or publisher are logged and swallowed.
type Reporter struct {
	log        logger.Logger
	recorder   Recorder
	publishers []func(Report)
}

// NewReporter creates a reporter. recorder may be nil.
func NewReporter(recorder Recorder, publishers ...func(Report)) *Reporter {
	return &Reporter{
		log:        GetLogger().Module("report"),
		recorder:   recorder,
		publishers: publishers,
	}
}

// Subscribe adds a publisher called with every emitted report.
func (r *Reporter) Subscribe(fn func(Report)) {
	r.publishers = append(r.publishers, fn)
}

// ObserveBatch forwards a batch measurement to the recorder.
func (r *Reporter) ObserveBatch(pipeline string, outcome Decision, duration time.Duration) {
	if r == nil || r.recorder == nil {
		return
	}
	r.guard("recorder", func() {
		r.recorder.ObserveBatch(pipeline, outcome.String(), duration)
	})
}

// Emit logs the report and hands it to the recorder and publishers.
func (r *Reporter) Emit(report Report) {
	if r == nil {
		return
	}

	fields := []logger.Field{
		logString("run_id", report.RunID),
		logString("pipeline", report.Pipeline),
		logString("status", string(report.Status)),
		logFloat64("duration_seconds", report.DurationSeconds),
		logInt("records_read", report.RecordsRead),
		logInt("inserted", report.Inserted),
		logInt("skipped_existing", report.SkippedExisting),
		logInt("child_rows_inserted", report.ChildRowsInserted),
		logInt("failures", report.Failures),
		logInt("batch_failures", report.BatchFailures),
		logInt("batches", report.Batches),
		logInt("objects_written", report.ObjectsWritten),
		logInt("records_purged", report.RecordsPurged),
	}
	r.guard("log", func() {
		if report.Status == StatusCompleted {
			r.log.Info("run finished", fields...)
			return
		}
		r.log.Error("run finished", append(fields, logString("error", report.Error))...)
	})

	if r.recorder != nil {
		r.guard("recorder", func() { r.recorder.ObserveRun(report) })
	}
	for _, publish := range r.publishers {
		r.guard("publisher", func() { publish(report) })
	}
}

func (r *Reporter) guard(stage string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("report stage panicked",
				logString("stage", stage),
				logString("panic", fmt.Sprint(p)))
		}
	}()
	fn()
}
