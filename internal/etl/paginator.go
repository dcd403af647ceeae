package etl

import "context"

// Paginator yields bounded batches from a source under a stable predicate.
//
// Next returns the next batch of at most the configured limit. An empty
// batch means the source is exhausted; after that Done reports true and
// further calls keep returning empty batches. A paginator is finite and is
// not restartable mid-run.
type Paginator interface {
	Next(ctx context.Context) (Batch, error)
	Done() bool
}
