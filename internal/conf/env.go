// env.go - Environment variable bindings and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings maps the variable names used by existing deployments.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"source.dsn", "SQL_CONN_STR", nil},
		{"source.driver", "SQL_DRIVER", validateEnvDriver},

		{"archive.sink.connection_string", "BLOB_CONN_STR", validateEnvURL},
		{"archive.sink.container", "ARCHIVE_CONTAINER", nil},
		{"archive.batch_size", "BATCH_SIZE", validateEnvPositiveInt},
		{"archive.days_old", "DAYS_OLD", validateEnvNonNegativeInt},
		{"archive.dry_run", "DISABLE_SQL", validateEnvBool},

		{"migrate.source.url", "COSMOS_URL", validateEnvURL},
		{"migrate.source.key", "COSMOS_KEY", nil},
		{"migrate.source.database", "COSMOS_DB", nil},
		{"migrate.source.container", "COSMOS_CONTAINER", nil},
		{"migrate.batch_size", "MIGRATE_BATCH_SIZE", validateEnvPositiveInt},

		{"telemetry.sentry_dsn", "SENTRY_DSN", nil},
		{"server.function_key", "FUNCTION_KEY", nil},
	}
}

// bindEnvVars binds each variable, collecting problems into one error.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		// the automatic DATAMOVER_* name stays active next to the legacy one
		autoName := "DATAMOVER_" + strings.ToUpper(strings.ReplaceAll(binding.ConfigKey, ".", "_"))
		if err := viper.BindEnv(binding.ConfigKey, autoName, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer '%s'", value)
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero, got %d", n)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer '%s'", value)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvDriver(value string) error {
	if !isSupportedDriver(value) {
		return fmt.Errorf("unsupported driver '%s'", value)
	}
	return nil
}

// validateEnvURL rejects values that cannot be parsed; secrets are not echoed.
func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("not a valid URL (scheme://...)")
	}
	return nil
}
