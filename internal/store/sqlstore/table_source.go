package sqlstore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/datamover/internal/archive"
	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// TableConfig names the archived table and its key columns.
type TableConfig struct {
	Table         string
	CreatedColumn string
	IDColumn      string
}

// TableSource reads aged rows of one table in keyset order and purges them.
type TableSource struct {
	db  *gorm.DB
	cfg TableConfig
}

var _ archive.Source = (*TableSource)(nil)

// NewTableSource creates an archive source over cfg.Table.
func NewTableSource(db *DB, cfg TableConfig) (*TableSource, error) {
	if cfg.Table == "" || cfg.CreatedColumn == "" || cfg.IDColumn == "" {
		return nil, errors.Newf("table source requires table, created column and id column").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &TableSource{db: db.Gorm(), cfg: cfg}, nil
}

func (s *TableSource) created() clause.Column { return clause.Column{Name: s.cfg.CreatedColumn} }
func (s *TableSource) id() clause.Column      { return clause.Column{Name: s.cfg.IDColumn} }

// FetchBatch selects up to limit rows created before filter.Cutoff and after
// filter.After, ordered by (created, id).
func (s *TableSource) FetchBatch(ctx context.Context, filter archive.Filter, limit int) ([]etl.Record, error) {
	q := s.db.WithContext(ctx).
		Table(s.cfg.Table).
		Where(clause.Lt{Column: s.created(), Value: filter.Cutoff})

	if filter.After != nil {
		q = q.Where(clause.Or(
			clause.Gt{Column: s.created(), Value: filter.After.CreatedAt},
			clause.And(
				clause.Eq{Column: s.created(), Value: filter.After.CreatedAt},
				clause.Gt{Column: s.id(), Value: filter.After.ID},
			),
		))
	}

	var rows []map[string]any
	err := q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: s.created()},
		{Column: s.id()},
	}}).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "fetch_batch", errors.PriorityMedium,
			"table", s.cfg.Table,
			"limit", limit)
	}

	records := make([]etl.Record, len(rows))
	for i, row := range rows {
		records[i] = etl.Record(row)
	}
	return records, nil
}

// BeginPurge opens the transaction that deletes one archived batch.
func (s *TableSource) BeginPurge(ctx context.Context) (archive.PurgeTx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, dbError(tx.Error, "begin_purge", errors.PriorityHigh, "table", s.cfg.Table)
	}
	return &purgeTx{tx: tx, cfg: s.cfg}, nil
}

type purgeTx struct {
	tx  *gorm.DB
	cfg TableConfig
}

func (p *purgeTx) Delete(ctx context.Context, ids []any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := p.tx.WithContext(ctx).Exec("DELETE FROM ? WHERE ? IN ?",
		clause.Table{Name: p.cfg.Table},
		clause.Column{Name: p.cfg.IDColumn},
		ids)
	if result.Error != nil {
		return 0, dbError(result.Error, "purge", errors.PriorityHigh,
			"table", p.cfg.Table,
			"ids", len(ids))
	}
	return result.RowsAffected, nil
}

func (p *purgeTx) Commit() error {
	return p.tx.Commit().Error
}

func (p *purgeTx) Rollback() error {
	err := p.tx.Rollback().Error
	if err != nil {
		GetLogger().Warn("purge rollback failed", logString("table", p.cfg.Table), logError(err))
	}
	return err
}
