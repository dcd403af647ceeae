// Package docsource reads product documents page by page from a document
// store: a Cosmos-style REST API or JSON values in Redis.
package docsource

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the docsource package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("docsource")
}

var (
	logString   = logger.String
	logInt      = logger.Int
	logDuration = logger.Duration
)
