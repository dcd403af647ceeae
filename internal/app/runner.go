package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tphakala/datamover/internal/archive"
	"github.com/tphakala/datamover/internal/conf"
	"github.com/tphakala/datamover/internal/docsource"
	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/migrate"
	"github.com/tphakala/datamover/internal/objectstore"
	"github.com/tphakala/datamover/internal/observability"
	"github.com/tphakala/datamover/internal/store/sqlstore"
)

// Connectors open the external systems a run needs. Tests replace them.
type Connectors struct {
	OpenDB      func(ctx context.Context, cfg sqlstore.Config) (*sqlstore.DB, error)
	OpenObjects func(ctx context.Context, settings conf.SinkSettings) (objectstore.Store, error)
	OpenDocs    func(ctx context.Context, settings conf.DocumentSourceSettings, opts docsource.Options) (docsource.Source, error)
}

// DefaultConnectors returns the production connectors.
func DefaultConnectors() Connectors {
	return Connectors{
		OpenDB:      sqlstore.Open,
		OpenObjects: objectstore.New,
		OpenDocs:    docsource.New,
	}
}

// ErrRunInProgress is returned when a run of the same pipeline is active.
var ErrRunInProgress = errors.NewStd("pipeline run already in progress")

// Runner executes pipeline runs from settings. Every started run emits
// exactly one report, including runs that fail during setup. Runs of the
// same pipeline never overlap.
type Runner struct {
	settings   *conf.Settings
	reporter   *etl.Reporter
	metrics    *observability.Metrics
	connectors Connectors
	clock      func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a runner. metrics may be nil.
func NewRunner(settings *conf.Settings, metrics *observability.Metrics, publishers ...func(etl.Report)) *Runner {
	var recorder etl.Recorder
	if metrics != nil {
		recorder = metrics.Pipeline
	}
	return &Runner{
		settings:   settings,
		reporter:   etl.NewReporter(recorder, publishers...),
		metrics:    metrics,
		connectors: DefaultConnectors(),
		clock:      time.Now,
		running:    make(map[string]bool),
	}
}

// acquire marks pipeline as running until release is called.
func (r *Runner) acquire(pipeline string) (release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[pipeline] {
		return nil, ErrRunInProgress
	}
	r.running[pipeline] = true
	return func() {
		r.mu.Lock()
		delete(r.running, pipeline)
		r.mu.Unlock()
	}, nil
}

// Running reports whether a run of pipeline is active.
func (r *Runner) Running(pipeline string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[pipeline]
}

// WithConnectors replaces the connectors used to open stores.
func (r *Runner) WithConnectors(c Connectors) *Runner {
	r.connectors = c
	return r
}

// WithClock sets the clock used for cutoffs and object names.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// Reporter returns the reporter shared by all runs.
func (r *Runner) Reporter() *etl.Reporter {
	return r.reporter
}

// ArchiveOptions overrides settings for one archive run.
type ArchiveOptions struct {
	DryRun *bool
}

// RunArchive archives and purges aged records once.
func (r *Runner) RunArchive(ctx context.Context, opts ArchiveOptions) (etl.Report, error) {
	release, err := r.acquire(archive.PipelineName)
	if err != nil {
		return etl.Report{}, err
	}
	defer release()

	started := r.clock()
	s := r.settings
	dryRun := s.Archive.DryRun
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}

	if err := conf.ValidateArchive(s); err != nil {
		return r.setupFailed(archive.PipelineName, started, err)
	}

	db, err := r.connectors.OpenDB(ctx, sqlstore.Config{Driver: s.Source.Driver, DSN: s.Source.DSN})
	if err != nil {
		return r.setupFailed(archive.PipelineName, started, err)
	}
	defer closeQuietly("source database", db)

	source, err := sqlstore.NewTableSource(db, sqlstore.TableConfig{
		Table:         s.Archive.Table,
		CreatedColumn: s.Archive.CreatedColumn,
		IDColumn:      s.Archive.IDColumn,
	})
	if err != nil {
		return r.setupFailed(archive.PipelineName, started, err)
	}

	objects, err := r.connectors.OpenObjects(ctx, s.Archive.Sink)
	if err != nil {
		return r.setupFailed(archive.PipelineName, started, err)
	}
	defer closeQuietly("object store", objects)

	pipeline, err := archive.NewPipeline(archive.Config{
		Entity:            s.Archive.Entity,
		CreatedColumn:     s.Archive.CreatedColumn,
		IDColumn:          s.Archive.IDColumn,
		BatchSize:         s.Archive.BatchSize,
		OlderThan:         s.Archive.OlderThan(),
		DryRun:            dryRun,
		DefaultRetryAfter: s.Archive.DefaultRetryAfter,
		Clock:             r.clock,
	}, source, objects, r.reporter)
	if err != nil {
		return r.setupFailed(archive.PipelineName, started, err)
	}

	GetLogger().Info("starting archive run",
		logString("table", s.Archive.Table),
		logString("sink", objects.Name()),
		logBool("dry_run", dryRun))
	return pipeline.Run(ctx)
}

// RunMigrate copies documents into the product tables once.
func (r *Runner) RunMigrate(ctx context.Context) (etl.Report, error) {
	release, err := r.acquire(migrate.PipelineName)
	if err != nil {
		return etl.Report{}, err
	}
	defer release()

	started := r.clock()
	s := r.settings

	if err := conf.ValidateMigrate(s); err != nil {
		return r.setupFailed(migrate.PipelineName, started, err)
	}

	opts := docsource.Options{RequestsPerSecond: s.Migrate.RequestsPerSecond}
	if r.metrics != nil {
		opts.AfterResponse = r.metrics.HTTP.ObserveClientRequest
	}
	docs, err := r.connectors.OpenDocs(ctx, s.Migrate.Source, opts)
	if err != nil {
		return r.setupFailed(migrate.PipelineName, started, err)
	}
	defer closeQuietly("document source", docs)

	sinkSettings := s.EffectiveSink()
	db, err := r.connectors.OpenDB(ctx, sqlstore.Config{Driver: sinkSettings.Driver, DSN: sinkSettings.DSN})
	if err != nil {
		return r.setupFailed(migrate.PipelineName, started, err)
	}
	defer closeQuietly("sink database", db)

	sink := sqlstore.NewProductSink(db)
	if err := sink.Migrate(ctx); err != nil {
		return r.setupFailed(migrate.PipelineName, started, err)
	}

	pipeline, err := migrate.NewPipeline(migrate.Config{
		BatchSize:         s.Migrate.BatchSize,
		DefaultRetryAfter: s.Migrate.DefaultRetryAfter,
		Clock:             r.clock,
	}, docs, sink, r.reporter)
	if err != nil {
		return r.setupFailed(migrate.PipelineName, started, err)
	}

	GetLogger().Info("starting migration run",
		logString("source_type", s.Migrate.Source.Type),
		logString("sink_driver", sinkSettings.Driver))
	return pipeline.Run(ctx)
}

// setupFailed emits the report of a run that never started.
func (r *Runner) setupFailed(pipeline string, started time.Time, err error) (etl.Report, error) {
	report := etl.FailedReport(etl.NewRunID(), pipeline, started, err)
	r.reporter.Emit(report)
	return report, err
}

func closeQuietly(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		GetLogger().Warn("close failed", logString("resource", what), logError(err))
	}
}
