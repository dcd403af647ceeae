package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/datamover/internal/logger"
)

// Settings contains all configuration options for datamover.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Source    DatabaseSettings     `mapstructure:"source" yaml:"source"` // SQL store holding the records to archive
	Archive   ArchiveSettings      `mapstructure:"archive" yaml:"archive"`
	Migrate   MigrateSettings      `mapstructure:"migrate" yaml:"migrate"`
	Server    ServerSettings       `mapstructure:"server" yaml:"server"`
}

// TelemetrySettings controls error reporting to Sentry.
type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseSettings identifies a SQL database.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite, mysql or postgres
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// ArchiveSettings configures the archive-and-purge pipeline.
type ArchiveSettings struct {
	Entity            string           `mapstructure:"entity" yaml:"entity"`                 // object name prefix, e.g. "orders"
	Table             string           `mapstructure:"table" yaml:"table"`                   // source table
	CreatedColumn     string           `mapstructure:"created_column" yaml:"created_column"` // creation timestamp column
	IDColumn          string           `mapstructure:"id_column" yaml:"id_column"`
	BatchSize         int              `mapstructure:"batch_size" yaml:"batch_size"`
	DaysOld           int              `mapstructure:"days_old" yaml:"days_old"`
	DryRun            bool             `mapstructure:"dry_run" yaml:"dry_run"` // write archives, never delete from source
	DefaultRetryAfter time.Duration    `mapstructure:"default_retry_after" yaml:"default_retry_after"`
	Schedule          ScheduleSettings `mapstructure:"schedule" yaml:"schedule"`
	Sink              SinkSettings     `mapstructure:"sink" yaml:"sink"`
}

// ScheduleSettings configures the interval trigger used by serve.
type ScheduleSettings struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// SinkSettings configures the archive object store.
type SinkSettings struct {
	Type             string        `mapstructure:"type" yaml:"type"`                           // local, minio, sftp or ftp
	ConnectionString string        `mapstructure:"connection_string" yaml:"connection_string"` // URL form, overrides individual fields
	Container        string        `mapstructure:"container" yaml:"container"`                 // bucket or top-level directory
	Path             string        `mapstructure:"path" yaml:"path"`
	Endpoint         string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey        string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey        string        `mapstructure:"secret_key" yaml:"secret_key"`
	Region           string        `mapstructure:"region" yaml:"region"`
	UseSSL           bool          `mapstructure:"use_ssl" yaml:"use_ssl"`
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	Username         string        `mapstructure:"username" yaml:"username"`
	Password         string        `mapstructure:"password" yaml:"password"`
	KeyFile          string        `mapstructure:"key_file" yaml:"key_file"`
	KnownHostsFile   string        `mapstructure:"known_hosts_file" yaml:"known_hosts_file"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// MigrateSettings configures the migrate-and-dedup pipeline.
type MigrateSettings struct {
	BatchSize         int                    `mapstructure:"batch_size" yaml:"batch_size"`
	DefaultRetryAfter time.Duration          `mapstructure:"default_retry_after" yaml:"default_retry_after"`
	RequestsPerSecond float64                `mapstructure:"requests_per_second" yaml:"requests_per_second"` // 0 disables pacing
	Source            DocumentSourceSettings `mapstructure:"source" yaml:"source"`
	Sink              DatabaseSettings       `mapstructure:"sink" yaml:"sink"` // empty fields fall back to source
}

// DocumentSourceSettings configures where product documents are read from.
type DocumentSourceSettings struct {
	Type       string        `mapstructure:"type" yaml:"type"` // http or redis
	URL        string        `mapstructure:"url" yaml:"url"`
	Key        string        `mapstructure:"key" yaml:"key"`
	Database   string        `mapstructure:"database" yaml:"database"`
	Container  string        `mapstructure:"container" yaml:"container"`
	KeyPattern string        `mapstructure:"key_pattern" yaml:"key_pattern"` // redis SCAN match pattern
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerSettings configures the HTTP trigger server.
type ServerSettings struct {
	Listen      string `mapstructure:"listen" yaml:"listen"`
	FunctionKey string `mapstructure:"function_key" yaml:"function_key"` // required as ?code= or x-functions-key when set
}

// OlderThan returns the archive age threshold as a duration.
func (a *ArchiveSettings) OlderThan() time.Duration {
	return time.Duration(a.DaysOld) * 24 * time.Hour
}

// EffectiveSink returns the migrate sink, falling back to the source database.
func (s *Settings) EffectiveSink() DatabaseSettings {
	sink := s.Migrate.Sink
	if sink.Driver == "" {
		sink.Driver = s.Source.Driver
	}
	if sink.DSN == "" {
		sink.DSN = s.Source.DSN
	}
	return sink
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// A missing config file is not an error; defaults and environment apply.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func initViper() error {
	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	viper.SetEnvPrefix("DATAMOVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := bindEnvVars(); err != nil {
		return err
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Info("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "datamover"))
	}
	return append(paths, "/etc/datamover")
}
