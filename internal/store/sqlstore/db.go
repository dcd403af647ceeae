package sqlstore

import (
	"context"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/logger"
	"github.com/tphakala/datamover/internal/store/postgres"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const slowQueryThreshold = 2 * time.Second

// Config selects and configures a database connection.
type Config struct {
	Driver string
	DSN    string
}

// DB is an open database handle.
type DB struct {
	gorm   *gorm.DB
	driver string
}

// Open connects to the database described by cfg and verifies the
// connection. Configuration and connectivity errors are returned before any
// work starts.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.Newf("database DSN is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("driver", cfg.Driver).
			Build()
	}

	dialector, err := dialectorFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold).
		WithExpectedErrors(IsDuplicateKey)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		TranslateError:         true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
	})
	if err != nil {
		return nil, dbError(err, "open", errors.PriorityHigh, "driver", cfg.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", errors.PriorityHigh, "driver", cfg.Driver)
	}
	if cfg.Driver == DriverSQLite {
		// one connection keeps in-memory databases shared and avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, dbError(err, "ping", errors.PriorityHigh, "driver", cfg.Driver)
	}

	GetLogger().Debug("database opened", logString("driver", cfg.Driver))
	return &DB{gorm: db, driver: cfg.Driver}, nil
}

func dialectorFor(ctx context.Context, cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return sqlite.Open(cfg.DSN), nil
	case DriverMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case DriverPostgres:
		sqlDB, err := postgres.Open(ctx, postgres.DefaultConfig(cfg.DSN))
		if err != nil {
			return nil, dbError(err, "open", errors.PriorityHigh, "driver", cfg.Driver)
		}
		return gormpostgres.New(gormpostgres.Config{Conn: sqlDB}), nil
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// mysqlDSN forces parseTime so timestamp columns scan into time.Time.
func mysqlDSN(dsn string) (string, error) {
	parsed, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.New(fmt.Errorf("parse mysql DSN: %w", err)).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	parsed.ParseTime = true
	if parsed.Loc == nil {
		parsed.Loc = time.UTC
	}
	return parsed.FormatDSN(), nil
}

// Gorm returns the underlying GORM handle.
func (d *DB) Gorm() *gorm.DB {
	return d.gorm
}

// Driver returns the configured driver name.
func (d *DB) Driver() string {
	return d.driver
}

// Close releases the connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
