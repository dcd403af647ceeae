// Package objectstore writes archive objects to a local directory, an
// S3-compatible bucket, or an SFTP or FTP server.
package objectstore

import "github.com/tphakala/datamover/internal/logger"

// GetLogger returns the objectstore logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("objectstore")
}

var (
	logString = logger.String
	logInt    = logger.Int
	logError  = logger.Error
)
