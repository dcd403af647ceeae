package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadIsolated loads settings from an empty working directory so a stray
// config.yaml cannot leak into the test.
func loadIsolated(t *testing.T) (*Settings, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	settings, err := loadIsolated(t)
	require.NoError(t, err)

	assert.Equal(t, 1000, settings.Archive.BatchSize)
	assert.Equal(t, 30, settings.Archive.DaysOld)
	assert.Equal(t, 30*24*time.Hour, settings.Archive.OlderThan())
	assert.Equal(t, "archive", settings.Archive.Sink.Container)
	assert.Equal(t, 100, settings.Migrate.BatchSize)
	assert.Equal(t, time.Second, settings.Migrate.DefaultRetryAfter)
	assert.False(t, settings.Archive.DryRun)
	assert.Equal(t, ":8080", settings.Server.Listen)
}

func TestLegacyEnvironmentVariables(t *testing.T) {
	t.Setenv("SQL_CONN_STR", "file:orders.db")
	t.Setenv("BLOB_CONN_STR", "s3://key:secret@minio:9000")
	t.Setenv("ARCHIVE_CONTAINER", "cold")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("DAYS_OLD", "7")
	t.Setenv("DISABLE_SQL", "true")
	t.Setenv("COSMOS_URL", "https://cosmos.example.com")
	t.Setenv("COSMOS_DB", "catalog")
	t.Setenv("COSMOS_CONTAINER", "items")

	settings, err := loadIsolated(t)
	require.NoError(t, err)

	assert.Equal(t, "file:orders.db", settings.Source.DSN)
	assert.Equal(t, "s3://key:secret@minio:9000", settings.Archive.Sink.ConnectionString)
	assert.Equal(t, "cold", settings.Archive.Sink.Container)
	assert.Equal(t, 250, settings.Archive.BatchSize)
	assert.Equal(t, 7, settings.Archive.DaysOld)
	assert.True(t, settings.Archive.DryRun)
	assert.Equal(t, "catalog", settings.Migrate.Source.Database)

	require.NoError(t, ValidateArchive(settings))
	require.NoError(t, ValidateMigrate(settings))

	sink := settings.EffectiveSink()
	assert.Equal(t, "file:orders.db", sink.DSN)
	assert.Equal(t, "sqlite", sink.Driver)
}

func TestInvalidEnvironmentValue(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")

	_, err := loadIsolated(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
archive:
  batch_size: 50
  sink:
    type: sftp
    host: backup.example.com
migrate:
  source:
    type: redis
    url: redis://localhost:6379/0
`), 0o600))
	viper.SetConfigFile(path)

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, settings.Archive.BatchSize)
	assert.Equal(t, "sftp", settings.Archive.Sink.Type)
	assert.Equal(t, "backup.example.com", settings.Archive.Sink.Host)
	assert.Equal(t, "redis", settings.Migrate.Source.Type)
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			Source:  DatabaseSettings{Driver: "sqlite"},
			Archive: ArchiveSettings{BatchSize: 1000, DaysOld: 30, Sink: SinkSettings{Type: "local"}},
			Migrate: MigrateSettings{BatchSize: 100, Source: DocumentSourceSettings{Type: "http"}},
			Server:  ServerSettings{Listen: ":8080"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"zero batch", func(s *Settings) { s.Archive.BatchSize = 0 }, "archive.batch_size"},
		{"huge migrate batch", func(s *Settings) { s.Migrate.BatchSize = 20000 }, "migrate.batch_size"},
		{"negative days", func(s *Settings) { s.Archive.DaysOld = -1 }, "archive.days_old"},
		{"bad driver", func(s *Settings) { s.Source.Driver = "oracle" }, "source.driver"},
		{"bad sink", func(s *Settings) { s.Archive.Sink.Type = "tape" }, "archive.sink.type"},
		{"bad source", func(s *Settings) { s.Migrate.Source.Type = "kafka" }, "migrate.source.type"},
		{"bad listen", func(s *Settings) { s.Server.Listen = "8080" }, "server.listen"},
		{"schedule without interval", func(s *Settings) { s.Archive.Schedule.Enabled = true }, "archive.schedule.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateArchiveRequiresSource(t *testing.T) {
	t.Parallel()

	err := ValidateArchive(&Settings{Archive: ArchiveSettings{Entity: "orders", Table: "Orders", CreatedColumn: "createdOn", IDColumn: "id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQL_CONN_STR")
}

func TestValidateEnvBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		wantErr bool
	}{
		{"true", false},
		{"0", false},
		{" false ", false},
		{"yes", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			err := validateEnvBool(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
