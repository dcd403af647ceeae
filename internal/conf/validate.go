// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

const maxBatchSize = 10000

var (
	supportedDrivers     = []string{"sqlite", "mysql", "postgres"}
	supportedSinkTypes   = []string{"local", "minio", "sftp", "ftp"}
	supportedSourceTypes = []string{"http", "redis"}
)

func isSupportedDriver(driver string) bool {
	return slices.Contains(supportedDrivers, strings.ToLower(driver))
}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings checks settings that every command depends on.
// Connection targets are checked per pipeline by ValidateArchive and ValidateMigrate.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateBatchSize("archive.batch_size", settings.Archive.BatchSize); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Archive.DaysOld < 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("archive.days_old must not be negative, got %d", settings.Archive.DaysOld))
	}
	if settings.Archive.Schedule.Enabled && settings.Archive.Schedule.Interval <= 0 {
		ve.Errors = append(ve.Errors, "archive.schedule.interval must be positive when the schedule is enabled")
	}
	if err := validateBatchSize("migrate.batch_size", settings.Migrate.BatchSize); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Migrate.RequestsPerSecond < 0 {
		ve.Errors = append(ve.Errors, "migrate.requests_per_second must not be negative")
	}
	if settings.Source.Driver != "" && !isSupportedDriver(settings.Source.Driver) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("source.driver must be one of %v, got %q", supportedDrivers, settings.Source.Driver))
	}
	if settings.Migrate.Sink.Driver != "" && !isSupportedDriver(settings.Migrate.Sink.Driver) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("migrate.sink.driver must be one of %v, got %q", supportedDrivers, settings.Migrate.Sink.Driver))
	}
	if settings.Archive.Sink.ConnectionString == "" && !slices.Contains(supportedSinkTypes, settings.Archive.Sink.Type) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("archive.sink.type must be one of %v, got %q", supportedSinkTypes, settings.Archive.Sink.Type))
	}
	if !slices.Contains(supportedSourceTypes, settings.Migrate.Source.Type) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("migrate.source.type must be one of %v, got %q", supportedSourceTypes, settings.Migrate.Source.Type))
	}
	if settings.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(settings.Server.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("server.listen %q is not host:port", settings.Server.Listen))
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidateArchive checks the connection targets needed by an archive run.
func ValidateArchive(settings *Settings) error {
	ve := ValidationError{}
	if settings.Source.DSN == "" {
		ve.Errors = append(ve.Errors, "source.dsn (SQL_CONN_STR) is required")
	}
	if settings.Archive.Table == "" || settings.Archive.CreatedColumn == "" || settings.Archive.IDColumn == "" {
		ve.Errors = append(ve.Errors, "archive.table, archive.created_column and archive.id_column are required")
	}
	if settings.Archive.Entity == "" {
		ve.Errors = append(ve.Errors, "archive.entity is required")
	}
	if settings.Archive.Sink.Container == "" && settings.Archive.Sink.ConnectionString == "" {
		ve.Errors = append(ve.Errors, "archive.sink.container (ARCHIVE_CONTAINER) is required")
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidateMigrate checks the connection targets needed by a migration run.
func ValidateMigrate(settings *Settings) error {
	ve := ValidationError{}
	if settings.Migrate.Source.URL == "" {
		ve.Errors = append(ve.Errors, "migrate.source.url (COSMOS_URL) is required")
	}
	if settings.Migrate.Source.Type == "http" && (settings.Migrate.Source.Database == "" || settings.Migrate.Source.Container == "") {
		ve.Errors = append(ve.Errors, "migrate.source.database (COSMOS_DB) and migrate.source.container (COSMOS_CONTAINER) are required")
	}
	if settings.EffectiveSink().DSN == "" {
		ve.Errors = append(ve.Errors, "migrate.sink.dsn or source.dsn (SQL_CONN_STR) is required")
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBatchSize(key string, size int) error {
	if size <= 0 || size > maxBatchSize {
		return fmt.Errorf("%s must be between 1 and %d, got %d", key, maxBatchSize, size)
	}
	return nil
}
