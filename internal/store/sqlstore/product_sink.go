package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/migrate"
)

// Product is the primary table of the migration.
type Product struct {
	ID       string   `gorm:"column:id;primaryKey;size:191"`
	Name     *string  `gorm:"column:name;size:255"`
	Price    *float64 `gorm:"column:price"`
	Category *string  `gorm:"column:category;size:255"`
}

func (Product) TableName() string { return "Products" }

// ProductTag holds one tag of a product. Tags carry no key of their own.
type ProductTag struct {
	ProductID string `gorm:"column:productId;size:191;index"`
	Tag       string `gorm:"column:tag;size:255"`
}

func (ProductTag) TableName() string { return "ProductTags" }

// ProductSink writes migrated products and tags.
type ProductSink struct {
	db *gorm.DB
}

var _ migrate.Sink = (*ProductSink)(nil)

// NewProductSink creates a sink on db.
func NewProductSink(db *DB) *ProductSink {
	return &ProductSink{db: db.Gorm()}
}

// Migrate creates the product tables when missing.
func (s *ProductSink) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Product{}, &ProductTag{}); err != nil {
		return dbError(err, "migrate_schema", errors.PriorityHigh)
	}
	return nil
}

// Begin opens the transaction for one batch.
func (s *ProductSink) Begin(ctx context.Context) (migrate.SinkTx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, dbError(tx.Error, "begin", errors.PriorityHigh)
	}
	return &productTx{tx: tx}, nil
}

// productTx wraps every insert in a savepoint. A rejected insert is rolled
// back to its savepoint, so the transaction stays usable on databases that
// abort the whole transaction on error.
type productTx struct {
	tx         *gorm.DB
	savepoints int
}

func (t *productTx) InsertProducts(ctx context.Context, rows []migrate.ProductRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]Product, len(rows))
	for i, r := range rows {
		models[i] = toProduct(r)
	}
	return t.guarded(ctx, func(db *gorm.DB) error {
		if err := db.Create(&models).Error; err != nil {
			return translateInsertError(err, "insert_products", len(rows))
		}
		return nil
	})
}

func (t *productTx) InsertProduct(ctx context.Context, row migrate.ProductRow) error {
	model := toProduct(row)
	return t.guarded(ctx, func(db *gorm.DB) error {
		if err := db.Create(&model).Error; err != nil {
			return translateInsertError(err, "insert_product", 1)
		}
		return nil
	})
}

func (t *productTx) InsertTags(ctx context.Context, rows []migrate.TagRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]ProductTag, len(rows))
	for i, r := range rows {
		models[i] = ProductTag{ProductID: r.ProductID, Tag: r.Tag}
	}
	if err := t.tx.WithContext(ctx).Create(&models).Error; err != nil {
		return dbError(err, "insert_tags", errors.PriorityMedium, "rows", len(rows))
	}
	return nil
}

func (t *productTx) Commit() error {
	return t.tx.Commit().Error
}

func (t *productTx) Rollback() error {
	return t.tx.Rollback().Error
}

func (t *productTx) guarded(ctx context.Context, fn func(*gorm.DB) error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	db := t.tx.WithContext(ctx)

	if err := db.SavePoint(name).Error; err != nil {
		return dbError(err, "savepoint", errors.PriorityMedium)
	}
	if err := fn(db); err != nil {
		if rbErr := db.RollbackTo(name).Error; rbErr != nil {
			return errors.Join(err, dbError(rbErr, "rollback_to_savepoint", errors.PriorityHigh))
		}
		return err
	}
	return nil
}

func toProduct(r migrate.ProductRow) Product {
	return Product{ID: r.ID, Name: r.Name, Price: r.Price, Category: r.Category}
}
