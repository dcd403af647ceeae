// Package conf provides configuration management for datamover.
package conf

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched on each call so it follows the logger installed at startup.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
