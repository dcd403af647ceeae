package sqlstore

import (
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/migrate"
	"github.com/tphakala/datamover/internal/store/postgres"
)

const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a primary key or unique constraint
// violation on any supported driver.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, migrate.ErrDuplicateKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return postgres.IsUniqueViolation(err)
}

// translateInsertError maps duplicates to migrate.ErrDuplicateKey and
// everything else to a categorized database error.
func translateInsertError(err error, operation string, rows int) error {
	if IsDuplicateKey(err) {
		return fmt.Errorf("%w: %w", migrate.ErrDuplicateKey, err)
	}
	return dbError(err, operation, errors.PriorityMedium, "rows", rows)
}

// dbError creates a categorized database error with context pairs.
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	if isConnectionError(err) {
		builder = builder.Category(errors.CategoryNetwork)
	}

	return builder.Build()
}

func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "bad connection")
}
