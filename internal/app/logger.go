// Package app wires settings to stores, sources and pipelines and runs one
// pipeline invocation end to end.
package app

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the app package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

var (
	logString = logger.String
	logBool   = logger.Bool
	logError  = logger.Error
)
