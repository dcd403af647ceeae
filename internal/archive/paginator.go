package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// keysetPaginator walks records older than a fixed cutoff in
// (created, id) order. The cursor advances even when nothing is purged, so
// dry runs terminate.
type keysetPaginator struct {
	source     Source
	cutoff     time.Time
	limit      int
	createdKey string
	idKey      string
	after      *Keyset
	exhausted  bool
	done       bool
}

func newKeysetPaginator(source Source, cutoff time.Time, limit int, createdKey, idKey string) *keysetPaginator {
	return &keysetPaginator{
		source:     source,
		cutoff:     cutoff,
		limit:      limit,
		createdKey: createdKey,
		idKey:      idKey,
	}
}

func (p *keysetPaginator) Next(ctx context.Context) (etl.Batch, error) {
	if p.done {
		return etl.Batch{}, nil
	}
	if p.exhausted {
		p.done = true
		return etl.Batch{}, nil
	}

	records, err := p.source.FetchBatch(ctx, Filter{Cutoff: p.cutoff, After: p.after}, p.limit)
	if err != nil {
		return etl.Batch{}, err
	}
	if len(records) == 0 {
		p.done = true
		return etl.Batch{}, nil
	}

	next, err := p.keysetOf(records[len(records)-1])
	if err != nil {
		return etl.Batch{}, err
	}
	if p.after != nil && !movedPast(*p.after, next) {
		return etl.Batch{}, errors.Newf("cursor did not advance past %s", p.after).
			Component("archive").
			Category(errors.CategoryState).
			Build()
	}

	p.after = &next
	// a short page means the next query would come back empty
	p.exhausted = len(records) < p.limit

	return etl.Batch{Records: records, Position: next.String()}, nil
}

func (p *keysetPaginator) Done() bool {
	return p.done
}

func (p *keysetPaginator) keysetOf(r etl.Record) (Keyset, error) {
	created, err := asTime(r[p.createdKey])
	if err != nil {
		return Keyset{}, fmt.Errorf("record column %s: %w", p.createdKey, err)
	}
	id, ok := r[p.idKey]
	if !ok || id == nil {
		return Keyset{}, fmt.Errorf("record has no %s value", p.idKey)
	}
	return Keyset{CreatedAt: created, ID: id}, nil
}

// movedPast reports whether the store made progress from prev. Creation
// times must not go back and the position must change; the order of ids
// within one timestamp is left to the store's collation.
func movedPast(prev, next Keyset) bool {
	if next.CreatedAt.Before(prev.CreatedAt) {
		return false
	}
	return !next.CreatedAt.Equal(prev.CreatedAt) || compareIDs(next.ID, prev.ID) != 0
}
