// Package etl is the batch engine shared by the archive and migrate pipelines:
// pull-based pagination, explicit run outcomes, single-shot backoff and run
// statistics.
package etl

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the etl package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("etl")
}

var (
	logString   = logger.String
	logInt      = logger.Int
	logError    = logger.Error
	logDuration = logger.Duration
	logFloat64  = logger.Float64
)
