package archive

import (
	"context"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/logger"
)

// PipelineName identifies archive runs in reports and metrics.
const PipelineName = "archive"

const (
	DefaultBatchSize = 1000
	DefaultOlderThan = 30 * 24 * time.Hour
)

// Config configures an archive run.
type Config struct {
	Entity            string        // object key prefix, e.g. "orders"
	CreatedColumn     string        // record field holding the creation time
	IDColumn          string        // record field holding the id
	BatchSize         int           // records per archive object
	OlderThan         time.Duration // age threshold relative to run start
	DryRun            bool          // write archives but never purge
	DefaultRetryAfter time.Duration // backoff when throttled without a hint
	RunID             string // generated when empty
	Clock             func() time.Time
	Sleeper           func(ctx context.Context, d time.Duration) error // test hook for the backoff
}

// Pipeline archives aged records and purges them from the source.
type Pipeline struct {
	cfg      Config
	source   Source
	sink     ObjectWriter
	reporter *etl.Reporter
}

// NewPipeline validates cfg and applies defaults.
func NewPipeline(cfg Config, source Source, sink ObjectWriter, reporter *etl.Reporter) (*Pipeline, error) {
	if source == nil || sink == nil {
		return nil, errors.Newf("archive pipeline requires a source and a sink").
			Component("archive").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Entity == "" || cfg.CreatedColumn == "" || cfg.IDColumn == "" {
		return nil, errors.Newf("archive pipeline requires entity, created column and id column").
			Component("archive").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.OlderThan < 0 {
		cfg.OlderThan = DefaultOlderThan
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if reporter == nil {
		reporter = etl.NewReporter(nil)
	}
	return &Pipeline{cfg: cfg, source: source, sink: sink, reporter: reporter}, nil
}

// Run executes one archive run. The report is always returned; the error is
// set when the run was aborted or abandoned.
func (p *Pipeline) Run(ctx context.Context) (etl.Report, error) {
	runStart := p.cfg.Clock()
	cutoff := runStart.Add(-p.cfg.OlderThan)
	runID := p.cfg.RunID
	if runID == "" {
		runID = etl.NewRunID()
	}

	retry := etl.NewController(p.cfg.DefaultRetryAfter)
	if p.cfg.Sleeper != nil {
		retry.WithSleeper(p.cfg.Sleeper)
	}

	r := &run{
		Pipeline: p,
		namer:    NewObjectNamer(p.cfg.Entity, runStart, runID),
		retry:    retry,
	}

	engine, err := etl.NewEngine(&etl.EngineConfig{
		Pipeline:  PipelineName,
		RunID:     runID,
		Limit:     p.cfg.BatchSize,
		Paginator: newKeysetPaginator(p.source, cutoff, p.cfg.BatchSize, p.cfg.CreatedColumn, p.cfg.IDColumn),
		Process:   r.processBatch,
		Retry:     retry,
		Reporter:  p.reporter,
		Clock:     p.cfg.Clock,
	})
	if err != nil {
		return etl.FailedReport(runID, PipelineName, runStart, err), err
	}
	r.log = GetLogger().With(logString("run_id", engine.RunID()))

	r.log.Info("archiving records",
		logString("entity", p.cfg.Entity),
		logTime("cutoff", cutoff),
		logInt("batch_size", p.cfg.BatchSize),
		logBool("dry_run", p.cfg.DryRun))
	if p.cfg.DryRun {
		r.log.Warn("dry run: archive objects are written but source records are kept")
	}

	return engine.Run(ctx)
}

// run holds per-run state shared by the batch steps.
type run struct {
	*Pipeline
	namer *ObjectNamer
	retry *etl.Controller
	log   logger.Logger
}

func (r *run) processBatch(ctx context.Context, batch etl.Batch, stats etl.RunStats) (etl.RunStats, etl.Outcome) {
	tracker := &batchTracker{state: StateWritePending}

	ids, err := r.collectIDs(batch)
	if err != nil {
		return stats, etl.AbortRun(err)
	}

	body, err := EncodeNDJSON(batch.Records)
	if err != nil {
		return stats, etl.AbortRun(err)
	}

	key := r.namer.Next(r.cfg.Clock())
	location, err := r.sink.Put(ctx, key, body, NDJSONContentType)
	if err != nil {
		r.log.Error("archive write failed, source left untouched",
			logString("object", key),
			logInt("records", batch.Len()),
			logError(err))
		return stats, r.retry.Classify(err)
	}
	if err := tracker.advance(StateWritten); err != nil {
		return stats, etl.AbortRun(err)
	}
	stats.ObjectsWritten++
	stats.Inserted += batch.Len()

	r.log.Info("batch archived",
		logString("object", key),
		logString("location", location),
		logInt("records", batch.Len()),
		logInt("bytes", len(body)))

	if r.cfg.DryRun {
		return stats, etl.Continue(batch.Position)
	}

	if err := tracker.advance(StatePurgePending); err != nil {
		return stats, etl.AbortRun(err)
	}
	purged, err := purgeBatch(ctx, r.source, ids, stats.Batches)
	if err != nil {
		r.log.Error("purge failed, aborting run",
			logString("object", key),
			logInt("records", len(ids)),
			logError(err))
		return stats, etl.AbortRun(err)
	}
	if err := tracker.advance(StatePurged); err != nil {
		return stats, etl.AbortRun(err)
	}
	stats.RecordsPurged += int(purged)

	if purged != int64(len(ids)) {
		r.log.Warn("purged fewer records than archived",
			logInt("archived", len(ids)),
			logInt64("purged", purged))
	}

	return stats, etl.Continue(batch.Position)
}

func (r *run) collectIDs(batch etl.Batch) ([]any, error) {
	ids := make([]any, 0, batch.Len())
	for i, rec := range batch.Records {
		id, ok := rec.Get(r.cfg.IDColumn)
		if !ok || id == nil {
			return nil, errors.Newf("record %d in batch has no %s", i, r.cfg.IDColumn).
				Component("archive").
				Category(errors.CategoryValidation).
				Build()
		}
		ids = append(ids, id)
	}
	return ids, nil
}
