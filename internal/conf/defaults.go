// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultArchiveBatchSize = 1000
	DefaultDaysOld          = 30
	DefaultMigrateBatchSize = 100
	DefaultRetryAfter       = time.Second
	DefaultArchiveContainer = "archive"
)

// setDefaultConfig registers every key so environment overrides are
// visible to viper.Unmarshal.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "UTC")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/datamover.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("telemetry.sentry_dsn", "")
	viper.SetDefault("telemetry.environment", "production")

	viper.SetDefault("source.driver", "sqlite")
	viper.SetDefault("source.dsn", "")

	viper.SetDefault("archive.entity", "orders")
	viper.SetDefault("archive.table", "Orders")
	viper.SetDefault("archive.created_column", "createdOn")
	viper.SetDefault("archive.id_column", "id")
	viper.SetDefault("archive.batch_size", DefaultArchiveBatchSize)
	viper.SetDefault("archive.days_old", DefaultDaysOld)
	viper.SetDefault("archive.dry_run", false)
	viper.SetDefault("archive.default_retry_after", DefaultRetryAfter)
	viper.SetDefault("archive.schedule.enabled", false)
	viper.SetDefault("archive.schedule.interval", 24*time.Hour)

	viper.SetDefault("archive.sink.type", "local")
	viper.SetDefault("archive.sink.connection_string", "")
	viper.SetDefault("archive.sink.container", DefaultArchiveContainer)
	viper.SetDefault("archive.sink.path", "data")
	viper.SetDefault("archive.sink.endpoint", "")
	viper.SetDefault("archive.sink.access_key", "")
	viper.SetDefault("archive.sink.secret_key", "")
	viper.SetDefault("archive.sink.region", "")
	viper.SetDefault("archive.sink.use_ssl", true)
	viper.SetDefault("archive.sink.host", "")
	viper.SetDefault("archive.sink.port", 0)
	viper.SetDefault("archive.sink.username", "")
	viper.SetDefault("archive.sink.password", "")
	viper.SetDefault("archive.sink.key_file", "")
	viper.SetDefault("archive.sink.known_hosts_file", "")
	viper.SetDefault("archive.sink.timeout", 30*time.Second)
	viper.SetDefault("archive.sink.max_retries", 3)

	viper.SetDefault("migrate.batch_size", DefaultMigrateBatchSize)
	viper.SetDefault("migrate.default_retry_after", DefaultRetryAfter)
	viper.SetDefault("migrate.requests_per_second", 0)
	viper.SetDefault("migrate.source.type", "http")
	viper.SetDefault("migrate.source.url", "")
	viper.SetDefault("migrate.source.key", "")
	viper.SetDefault("migrate.source.database", "")
	viper.SetDefault("migrate.source.container", "products")
	viper.SetDefault("migrate.source.key_pattern", "product:*")
	viper.SetDefault("migrate.source.timeout", 30*time.Second)
	viper.SetDefault("migrate.sink.driver", "")
	viper.SetDefault("migrate.sink.dsn", "")

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.function_key", "")
}
