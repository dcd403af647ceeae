// Package sqlstore implements the relational stores on GORM: the archive
// source table with transactional purge and the product sink with
// duplicate-tolerant inserts.
package sqlstore

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the datastore logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

var (
	logString = logger.String
	logInt    = logger.Int
	logError  = logger.Error
)
