package migrate

import (
	"context"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// ErrDuplicateKey is returned by sink inserts that hit an existing primary key.
var ErrDuplicateKey = errors.NewStd("duplicate key")

// Sink opens one write transaction per batch.
type Sink interface {
	Begin(ctx context.Context) (SinkTx, error)
}

// SinkTx writes product and tag rows inside one transaction. A failed insert
// must leave the transaction usable so the caller can fall back to per-row
// inserts.
type SinkTx interface {
	etl.Transaction
	// InsertProducts inserts all rows or none.
	InsertProducts(ctx context.Context, rows []ProductRow) error
	InsertProduct(ctx context.Context, row ProductRow) error
	InsertTags(ctx context.Context, rows []TagRow) error
}
