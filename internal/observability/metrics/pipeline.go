// Package metrics provides pipeline metrics for observability
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/datamover/internal/etl"
)

// PipelineMetrics records batch and run outcomes. It implements etl.Recorder.
type PipelineMetrics struct {
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	recordsTotal     *prometheus.CounterVec
	objectsWritten   *prometheus.CounterVec
	lastRunTimestamp *prometheus.GaugeVec
	lastRunFailures  *prometheus.GaugeVec
}

var _ etl.Recorder = (*PipelineMetrics)(nil)

// NewPipelineMetrics creates and registers new pipeline metrics
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamover_batches_total",
			Help: "Total number of processed batches",
		},
		[]string{"pipeline", "outcome"}, // outcome: continue, retry, abort
	)

	m.batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datamover_batch_duration_seconds",
			Help:    "Time taken to process one batch",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"pipeline"},
	)

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamover_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"pipeline", "status"}, // status: completed, aborted, abandoned, failed
	)

	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datamover_run_duration_seconds",
			Help:    "Wall time of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount15), // 100ms to ~27min
		},
		[]string{"pipeline"},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamover_records_total",
			Help: "Records handled by pipeline runs",
		},
		[]string{"pipeline", "kind"},
	)

	m.objectsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamover_objects_written_total",
			Help: "Archive objects written to the object store",
		},
		[]string{"pipeline"},
	)

	m.lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datamover_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
		[]string{"pipeline", "status"},
	)

	m.lastRunFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datamover_last_run_failures",
			Help: "Failures counted by the last run",
		},
		[]string{"pipeline"},
	)
}

func (m *PipelineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.batchesTotal,
		m.batchDuration,
		m.runsTotal,
		m.runDuration,
		m.recordsTotal,
		m.objectsWritten,
		m.lastRunTimestamp,
		m.lastRunFailures,
	}
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors() {
		collector.Collect(ch)
	}
}

// ObserveBatch records one processed batch.
func (m *PipelineMetrics) ObserveBatch(pipeline, outcome string, duration time.Duration) {
	m.batchesTotal.WithLabelValues(pipeline, outcome).Inc()
	m.batchDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// ObserveRun records the final report of a run.
func (m *PipelineMetrics) ObserveRun(report etl.Report) {
	p := report.Pipeline
	status := string(report.Status)
	m.runsTotal.WithLabelValues(p, status).Inc()
	m.runDuration.WithLabelValues(p).Observe(report.DurationSeconds)

	m.recordsTotal.WithLabelValues(p, KindRead).Add(float64(report.RecordsRead))
	m.recordsTotal.WithLabelValues(p, KindInserted).Add(float64(report.Inserted))
	m.recordsTotal.WithLabelValues(p, KindSkipped).Add(float64(report.SkippedExisting))
	m.recordsTotal.WithLabelValues(p, KindFailed).Add(float64(report.Failures))
	m.recordsTotal.WithLabelValues(p, KindChildRows).Add(float64(report.ChildRowsInserted))
	m.recordsTotal.WithLabelValues(p, KindPurged).Add(float64(report.RecordsPurged))
	m.objectsWritten.WithLabelValues(p).Add(float64(report.ObjectsWritten))

	finished := report.StartedAt.Add(time.Duration(report.DurationSeconds * float64(time.Second)))
	if report.StartedAt.IsZero() {
		finished = time.Now()
	}
	m.lastRunTimestamp.DeletePartialMatch(prometheus.Labels{"pipeline": p})
	m.lastRunTimestamp.WithLabelValues(p, status).Set(float64(finished.Unix()))
	m.lastRunFailures.WithLabelValues(p).Set(float64(report.Failures))
}
