// Package archive implements the archive-and-purge pipeline: batches of aged
// source records are written to an object store as NDJSON and deleted from
// the source only after the write succeeded.
package archive

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the archive package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("archive")
}

var (
	logString = logger.String
	logInt    = logger.Int
	logInt64  = logger.Int64
	logError  = logger.Error
	logBool   = logger.Bool
	logTime   = logger.Time
)
