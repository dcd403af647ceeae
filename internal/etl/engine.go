package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/logger"
)

// BatchFunc processes one batch. It receives the stats accumulated so far
// and returns the updated stats together with the decision for the run loop.
type BatchFunc func(ctx context.Context, batch Batch, stats RunStats) (RunStats, Outcome)

// EngineConfig holds the parts of one run.
type EngineConfig struct {
	Pipeline  string
	RunID     string // generated when empty
	Limit     int    // maximum batch size the paginator may yield
	Paginator Paginator
	Process   BatchFunc
	Retry     *Controller
	Reporter  *Reporter
	Clock     func() time.Time
}

// Engine drives a paginator through a batch function, strictly one batch at
// a time, and reports the run once it ends.
type Engine struct {
	cfg EngineConfig
	log logger.Logger
}

// NewEngine validates cfg and applies defaults.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil || cfg.Paginator == nil || cfg.Process == nil {
		return nil, errors.Newf("engine requires a paginator and a batch function").
			Component("etl").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c := *cfg
	if c.RunID == "" {
		c.RunID = NewRunID()
	}
	if c.Retry == nil {
		c.Retry = NewController(0)
	}
	if c.Reporter == nil {
		c.Reporter = NewReporter(nil)
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	return &Engine{
		cfg: c,
		log: GetLogger().With(logString("pipeline", c.Pipeline), logString("run_id", c.RunID)),
	}, nil
}

// RunID returns the identifier of the run this engine executes.
func (e *Engine) RunID() string {
	return e.cfg.RunID
}

// Run executes the run to completion. The report is always emitted and
// returned; the error is non-nil when the run was aborted or abandoned.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	started := e.cfg.Clock()
	stats := RunStats{}

	e.log.Info("run started", logInt("limit", e.cfg.Limit))

	runErr := e.loop(ctx, &stats)

	report := NewReport(e.cfg.RunID, e.cfg.Pipeline, started, e.cfg.Clock(), stats, runErr)
	if !stats.Consistent() {
		e.log.Error("run statistics are inconsistent",
			logInt("records_read", stats.RecordsRead),
			logInt("inserted", stats.Inserted),
			logInt("skipped_existing", stats.SkippedExisting),
			logInt("failures", stats.Failures))
	}
	e.cfg.Reporter.Emit(report)
	return report, runErr
}

func (e *Engine) loop(ctx context.Context, stats *RunStats) error {
	for {
		if err := ctx.Err(); err != nil {
			return e.cfg.Retry.Resolve(ctx, AbortRun(err))
		}

		batch, err := e.cfg.Paginator.Next(ctx)
		if err != nil {
			e.log.Warn("failed to read batch", logError(err), logInt("batch", stats.Batches+1))
			return e.cfg.Retry.Resolve(ctx, e.cfg.Retry.Classify(err))
		}
		if batch.Empty() {
			e.log.Debug("source exhausted", logInt("batches", stats.Batches))
			return nil
		}
		if e.cfg.Limit > 0 && batch.Len() > e.cfg.Limit {
			return e.cfg.Retry.Resolve(ctx, AbortRun(fmt.Errorf("paginator returned %d records, limit is %d", batch.Len(), e.cfg.Limit)))
		}

		stats.Batches++
		stats.RecordsRead += batch.Len()

		batchStart := e.cfg.Clock()
		var outcome Outcome
		*stats, outcome = e.cfg.Process(ctx, batch, *stats)
		e.cfg.Reporter.ObserveBatch(e.cfg.Pipeline, outcome.Decision, e.cfg.Clock().Sub(batchStart))

		if outcome.Decision != DecisionContinue {
			return e.cfg.Retry.Resolve(ctx, outcome)
		}
		e.log.Debug("batch done",
			logInt("batch", stats.Batches),
			logInt("records", batch.Len()),
			logString("cursor", outcome.Cursor))
	}
}
