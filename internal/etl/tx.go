package etl

import (
	"context"
	"fmt"

	"github.com/tphakala/datamover/internal/errors"
)

// Transaction is the commit/rollback capability a store hands out for one batch.
type Transaction interface {
	Commit() error
	Rollback() error
}

// InTx begins a transaction, runs fn inside it and commits. Any error from fn
// rolls the transaction back. The transaction is finished on every path,
// including panics in fn.
func InTx[T Transaction](ctx context.Context, begin func(context.Context) (T, error), fn func(T) error) (err error) {
	tx, err := begin(ctx)
	if err != nil {
		return errors.New(fmt.Errorf("begin transaction: %w", err)).
			Category(errors.CategoryTransaction).
			Build()
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return errors.New(fmt.Errorf("commit transaction: %w", err)).
			Category(errors.CategoryTransaction).
			Build()
	}
	return nil
}
