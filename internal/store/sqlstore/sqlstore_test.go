package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/datamover/internal/archive"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/migrate"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.Context(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createOrders(t *testing.T, db *DB, ages ...int) {
	t.Helper()
	g := db.Gorm()
	require.NoError(t, g.Exec(`CREATE TABLE Orders (id INTEGER PRIMARY KEY, createdOn DATETIME NOT NULL, total REAL)`).Error)
	for i, days := range ages {
		created := now.Add(-time.Duration(days) * 24 * time.Hour)
		require.NoError(t, g.Exec(`INSERT INTO Orders (id, createdOn, total) VALUES (?, ?, ?)`, i+1, created, float64(i)*1.5).Error)
	}
}

func orderIDs(t *testing.T, db *DB) []int64 {
	t.Helper()
	var ids []int64
	require.NoError(t, db.Gorm().Table("Orders").Order("id").Pluck("id", &ids).Error)
	return ids
}

func newOrderSource(t *testing.T, db *DB) *TableSource {
	t.Helper()
	src, err := NewTableSource(db, TableConfig{Table: "Orders", CreatedColumn: "createdOn", IDColumn: "id"})
	require.NoError(t, err)
	return src
}

func TestOpenRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), Config{Driver: DriverSQLite})
	require.Error(t, err)

	_, err = Open(t.Context(), Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
}

func TestMySQLDSNForcesParseTime(t *testing.T) {
	t.Parallel()

	dsn, err := mysqlDSN("user:pw@tcp(db:3306)/shop")
	require.NoError(t, err)

	parsed, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, "shop", parsed.DBName)

	_, err = mysqlDSN("not a dsn")
	require.Error(t, err)
}

func TestTableSourceFetchesInKeysetOrder(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	createOrders(t, db, 40, 35, 10, 45)
	src := newOrderSource(t, db)
	cutoff := now.Add(-30 * 24 * time.Hour)

	first, err := src.FetchBatch(t.Context(), archive.Filter{Cutoff: cutoff}, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.EqualValues(t, 4, first[0]["id"], "oldest first")
	assert.EqualValues(t, 1, first[1]["id"])
	assert.IsType(t, time.Time{}, first[0]["createdOn"])

	last := first[1]
	after := archive.Keyset{CreatedAt: last["createdOn"].(time.Time), ID: last["id"]}
	second, err := src.FetchBatch(t.Context(), archive.Filter{Cutoff: cutoff, After: &after}, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.EqualValues(t, 2, second[0]["id"])
}

func TestPurgeCommitsAndRollsBack(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	createOrders(t, db, 40, 35, 10)
	src := newOrderSource(t, db)

	tx, err := src.BeginPurge(t.Context())
	require.NoError(t, err)
	n, err := tx.Delete(t.Context(), []any{int64(1), int64(2)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, tx.Rollback())
	assert.Equal(t, []int64{1, 2, 3}, orderIDs(t, db))

	tx, err = src.BeginPurge(t.Context())
	require.NoError(t, err)
	_, err = tx.Delete(t.Context(), []any{int64(1)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, []int64{2, 3}, orderIDs(t, db))
}

// memoryObjects is an archive sink kept in memory.
type memoryObjects map[string][]byte

func (m memoryObjects) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	m[key] = body
	return "mem://" + key, nil
}

func TestArchivePipelineOnSQLite(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	createOrders(t, db, 40, 35, 10)
	objects := memoryObjects{}

	p, err := archive.NewPipeline(archive.Config{
		Entity:        "orders",
		CreatedColumn: "createdOn",
		IDColumn:      "id",
		BatchSize:     2,
		OlderThan:     30 * 24 * time.Hour,
		Clock:         func() time.Time { return now },
	}, newOrderSource(t, db), objects, nil)
	require.NoError(t, err)

	report, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordsPurged)
	assert.Len(t, objects, 1)
	assert.Equal(t, []int64{3}, orderIDs(t, db))
}

func TestProductSinkFallsBackOnDuplicates(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	sink := NewProductSink(db)
	require.NoError(t, sink.Migrate(t.Context()))
	require.NoError(t, db.Gorm().Create(&Product{ID: "X"}).Error)

	tx, err := sink.Begin(t.Context())
	require.NoError(t, err)

	price := 4.5
	err = tx.InsertProducts(t.Context(), []migrate.ProductRow{{ID: "X"}, {ID: "Y", Price: &price}})
	require.ErrorIs(t, err, migrate.ErrDuplicateKey)

	// the transaction survives the rejected bulk insert
	require.ErrorIs(t, tx.InsertProduct(t.Context(), migrate.ProductRow{ID: "X"}), migrate.ErrDuplicateKey)
	require.NoError(t, tx.InsertProduct(t.Context(), migrate.ProductRow{ID: "Y", Price: &price}))
	require.NoError(t, tx.InsertTags(t.Context(), []migrate.TagRow{{ProductID: "X", Tag: "red"}}))
	require.NoError(t, tx.Commit())

	var products []Product
	require.NoError(t, db.Gorm().Order("id").Find(&products).Error)
	require.Len(t, products, 2)
	require.NotNil(t, products[1].Price)
	assert.InDelta(t, 4.5, *products[1].Price, 1e-9)

	var tags int64
	require.NoError(t, db.Gorm().Model(&ProductTag{}).Count(&tags).Error)
	assert.EqualValues(t, 1, tags)
}

type staticPages struct {
	pages []migrate.Page
}

func (s *staticPages) ReadPage(context.Context, int) (migrate.Page, error) {
	if len(s.pages) == 0 {
		return migrate.Page{}, nil
	}
	p := s.pages[0]
	s.pages = s.pages[1:]
	return p, nil
}

func TestMigratePipelineOnSQLite(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	sink := NewProductSink(db)
	require.NoError(t, sink.Migrate(t.Context()))
	require.NoError(t, db.Gorm().Create(&Product{ID: "X"}).Error)

	source := &staticPages{pages: []migrate.Page{{Docs: []etl.Record{
		{"id": "X", "tags": []any{"old"}},
		{"id": "Y", "name": "Yak wool", "price": "19.90", "tags": []any{"warm", "soft"}},
	}}}}

	p, err := migrate.NewPipeline(migrate.Config{}, source, sink, nil)
	require.NoError(t, err)
	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.SkippedExisting)
	assert.Equal(t, 3, report.ChildRowsInserted)
	assert.Zero(t, report.Failures)
}

func TestIsDuplicateKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, false},
		{"mysql duplicate entry", &gomysql.MySQLError{Number: 1062}, true},
		{"mysql deadlock", &gomysql.MySQLError{Number: 1213}, false},
		{"plain", fmt.Errorf("duplicate key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsDuplicateKey(tt.err))
		})
	}
}
