// Package migrate copies product documents from a paginated document source
// into a relational sink, tolerating bad records, duplicate keys and failed
// batches without stopping the run.
package migrate

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the migrate package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("migrate")
}

var (
	logString = logger.String
	logInt    = logger.Int
	logError  = logger.Error
)
