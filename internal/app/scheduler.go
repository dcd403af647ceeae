package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// Job is one scheduled pipeline run.
type Job func(ctx context.Context) (etl.Report, error)

// Scheduler runs a job on a fixed interval. A tick that finds the previous
// run, or a run started elsewhere, still active is skipped.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	skipped  atomic.Int64
}

// NewScheduler creates a scheduler for job. interval must be positive.
func NewScheduler(name string, interval time.Duration, job Job) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.NewStd("schedule interval must be positive")
	}
	return &Scheduler{name: name, interval: interval, job: job}, nil
}

// Skipped returns the number of ticks skipped because a run was active.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Run blocks until ctx is done, starting the job on every tick. Runs execute
// on the caller's goroutine, so ticks that arrive meanwhile are dropped by
// the ticker.
func (s *Scheduler) Run(ctx context.Context) error {
	log := GetLogger().With(logString("pipeline", s.name))
	log.Info("scheduler started", logString("interval", s.interval.String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			report, err := s.job(ctx)
			switch {
			case errors.Is(err, ErrRunInProgress):
				s.skipped.Add(1)
				log.Info("scheduled run skipped, previous run still active")
			case err != nil:
				log.Warn("scheduled run ended with error",
					logString("run_id", report.RunID),
					logString("status", string(report.Status)),
					logError(err))
			}
		}
	}
}
