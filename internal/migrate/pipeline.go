package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/logger"
)

// PipelineName identifies migration runs in reports and metrics.
const PipelineName = "migrate"

// DefaultBatchSize is the page size requested from the document source.
const DefaultBatchSize = 100

// Config configures a migration run.
type Config struct {
	BatchSize         int
	DefaultRetryAfter time.Duration
	Clock             func() time.Time
	Sleeper           func(ctx context.Context, d time.Duration) error
}

// Pipeline copies documents into the product tables.
type Pipeline struct {
	cfg      Config
	source   Source
	sink     Sink
	reporter *etl.Reporter
}

// NewPipeline validates its inputs and applies defaults.
func NewPipeline(cfg Config, source Source, sink Sink, reporter *etl.Reporter) (*Pipeline, error) {
	if source == nil || sink == nil {
		return nil, errors.Newf("migrate pipeline requires a source and a sink").
			Component("migrate").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if reporter == nil {
		reporter = etl.NewReporter(nil)
	}
	return &Pipeline{cfg: cfg, source: source, sink: sink, reporter: reporter}, nil
}

// Run executes one migration run and returns its report. The error is set
// when the run was aborted or abandoned; failed batches do not stop the run.
func (p *Pipeline) Run(ctx context.Context) (etl.Report, error) {
	retry := etl.NewController(p.cfg.DefaultRetryAfter)
	if p.cfg.Sleeper != nil {
		retry.WithSleeper(p.cfg.Sleeper)
	}

	r := &run{Pipeline: p, retry: retry}
	engine, err := etl.NewEngine(&etl.EngineConfig{
		Pipeline:  PipelineName,
		Limit:     p.cfg.BatchSize,
		Paginator: newPagePaginator(p.source, p.cfg.BatchSize),
		Process:   r.processBatch,
		Retry:     retry,
		Reporter:  p.reporter,
		Clock:     p.cfg.Clock,
	})
	if err != nil {
		return etl.FailedReport("", PipelineName, p.cfg.Clock(), err), err
	}
	r.log = GetLogger().With(logString("run_id", engine.RunID()))
	r.log.Info("starting document migration", logInt("batch_size", p.cfg.BatchSize))

	return engine.Run(ctx)
}

type run struct {
	*Pipeline
	retry *etl.Controller
	log   logger.Logger
}

// writeSet is the mapped content of one batch.
type writeSet struct {
	products []ProductRow
	tags     []TagRow
}

func (r *run) processBatch(ctx context.Context, batch etl.Batch, stats etl.RunStats) (etl.RunStats, etl.Outcome) {
	ws, mapFailures := r.mapBatch(batch)
	stats.Failures += mapFailures

	if len(ws.products) == 0 {
		return stats, etl.Continue(batch.Position)
	}

	delta, err := r.writeBatch(ctx, ws)
	if err != nil {
		if ctx.Err() != nil {
			return stats, etl.AbortRun(err)
		}
		if _, throttled := etl.IsRateLimited(err); throttled {
			return stats, r.retry.Classify(err)
		}
		stats.BatchFailures++
		stats.Failures += len(ws.products)
		r.log.Error("batch insert failed, rolled back",
			logString("position", batch.Position),
			logInt("records", len(ws.products)),
			logError(batchError(err, stats.Batches, len(ws.products))))
		return stats, etl.Continue(batch.Position)
	}

	r.log.Debug("batch committed",
		logString("position", batch.Position),
		logInt("inserted", delta.Inserted),
		logInt("skipped_existing", delta.SkippedExisting),
		logInt("tags", delta.ChildRowsInserted))

	return stats.Add(delta), etl.Continue(batch.Position)
}

// batchError records a rolled-back batch for telemetry.
func batchError(err error, batchNo, size int) error {
	return errors.New(err).
		Component("migrate").
		Category(errors.CategoryTransaction).
		BatchContext(PipelineName, batchNo, size).
		Build()
}

func (r *run) mapBatch(batch etl.Batch) (writeSet, int) {
	ws := writeSet{products: make([]ProductRow, 0, batch.Len())}
	failures := 0
	for _, doc := range batch.Records {
		product, tags, err := MapProduct(doc)
		if err != nil {
			failures++
			id, _ := doc.StringID(FieldID)
			r.log.Warn("skipping document that cannot be mapped",
				logString("doc_id", id),
				logError(err))
			continue
		}
		ws.products = append(ws.products, product)
		ws.tags = append(ws.tags, tags...)
	}
	return ws, failures
}

// writeBatch inserts a write set in one transaction and returns the counts
// to merge once the transaction committed.
func (r *run) writeBatch(ctx context.Context, ws writeSet) (etl.RunStats, error) {
	tracker := &batchTracker{state: StateWritePending}
	var delta etl.RunStats

	err := etl.InTx(ctx, r.sink.Begin, func(tx SinkTx) error {
		inserted, skipped, err := r.insertProducts(ctx, tx, ws.products)
		if err != nil {
			return err
		}
		// tags are written for skipped products too
		if len(ws.tags) > 0 {
			if err := tx.InsertTags(ctx, ws.tags); err != nil {
				return fmt.Errorf("insert %d tags: %w", len(ws.tags), err)
			}
		}
		delta = etl.RunStats{
			Inserted:          inserted,
			SkippedExisting:   skipped,
			ChildRowsInserted: len(ws.tags),
		}
		return tracker.advance(StateWritten)
	})
	if err != nil {
		return etl.RunStats{}, err
	}
	if err := tracker.advance(StateCommitted); err != nil {
		return etl.RunStats{}, err
	}
	return delta, nil
}

// insertProducts tries a bulk insert and falls back to row-by-row inserts
// when some product already exists.
func (r *run) insertProducts(ctx context.Context, tx SinkTx, rows []ProductRow) (inserted, skipped int, err error) {
	err = tx.InsertProducts(ctx, rows)
	if err == nil {
		return len(rows), 0, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return 0, 0, fmt.Errorf("insert %d products: %w", len(rows), err)
	}

	r.log.Warn("primary key conflict in batch, inserting row by row", logInt("rows", len(rows)))
	for _, row := range rows {
		err := tx.InsertProduct(ctx, row)
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, ErrDuplicateKey):
			skipped++
		default:
			return 0, 0, fmt.Errorf("insert product %s: %w", row.ID, err)
		}
	}
	return inserted, skipped, nil
}
