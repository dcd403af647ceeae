package archive

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// DeleteChunkSize bounds the id list of a single DELETE statement.
const DeleteChunkSize = 1000

// ErrPurgeFailed marks a failed source deletion. It always aborts the run.
var ErrPurgeFailed = errors.NewStd("purge failed")

// purgeBatch deletes the ids of batch number batchNo in one transaction,
// chunked per statement. Either every chunk is committed or none is.
func purgeBatch(ctx context.Context, source Source, ids []any, batchNo int) (int64, error) {
	start := time.Now()
	var purged int64
	err := etl.InTx(ctx, source.BeginPurge, func(tx PurgeTx) error {
		for chunk := range slices.Chunk(ids, DeleteChunkSize) {
			n, err := tx.Delete(ctx, chunk)
			if err != nil {
				return fmt.Errorf("delete %d ids: %w", len(chunk), err)
			}
			purged += n
		}
		return nil
	})
	if err != nil {
		return 0, errors.New(fmt.Errorf("%w: %w", ErrPurgeFailed, err)).
			Component("archive").
			Category(errors.CategoryPurge).
			Priority(errors.PriorityCritical).
			BatchContext(PipelineName, batchNo, len(ids)).
			Timing("purge", time.Since(start)).
			Build()
	}
	return purged, nil
}
