package archive

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// memorySource is an ordered in-memory table with transactional deletes.
type memorySource struct {
	mu         sync.Mutex
	rows       []etl.Record
	fetchErr   error
	deleteErr  error
	fetches    int
	deleteSize []int
	commits    int
	rollbacks  int
}

func newMemorySource(rows ...etl.Record) *memorySource {
	s := &memorySource{rows: rows}
	sortRows(s.rows)
	return s
}

func sortRows(rows []etl.Record) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i]["createdOn"].(time.Time), rows[j]["createdOn"].(time.Time)
		if a.Equal(b) {
			return compareIDs(rows[i]["id"], rows[j]["id"]) < 0
		}
		return a.Before(b)
	})
}

// add inserts rows, keeping (createdOn, id) order.
func (s *memorySource) add(rows ...etl.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	sortRows(s.rows)
}

func (s *memorySource) FetchBatch(_ context.Context, f Filter, limit int) ([]etl.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	var out []etl.Record
	for _, r := range s.rows {
		created := r["createdOn"].(time.Time)
		if !created.Before(f.Cutoff) {
			continue
		}
		if f.After != nil && !advances(*f.After, Keyset{CreatedAt: created, ID: r["id"]}) {
			continue
		}
		out = append(out, maps.Clone(r))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memorySource) BeginPurge(context.Context) (PurgeTx, error) {
	return &memoryTx{source: s, staged: map[any]bool{}}, nil
}

func (s *memorySource) ids() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r["id"])
	}
	return out
}

type memoryTx struct {
	source *memorySource
	staged map[any]bool
}

func (t *memoryTx) Delete(_ context.Context, ids []any) (int64, error) {
	t.source.mu.Lock()
	defer t.source.mu.Unlock()
	t.source.deleteSize = append(t.source.deleteSize, len(ids))
	if t.source.deleteErr != nil {
		return 0, t.source.deleteErr
	}
	for _, id := range ids {
		t.staged[id] = true
	}
	return int64(len(ids)), nil
}

func (t *memoryTx) Commit() error {
	t.source.mu.Lock()
	defer t.source.mu.Unlock()
	t.source.commits++
	t.source.rows = slices.DeleteFunc(t.source.rows, func(r etl.Record) bool {
		return t.staged[r["id"]]
	})
	return nil
}

func (t *memoryTx) Rollback() error {
	t.source.mu.Lock()
	defer t.source.mu.Unlock()
	t.source.rollbacks++
	return nil
}

// memorySink records every object written.
type memorySink struct {
	objects map[string][]byte
	order   []string
	err     error
}

func newMemorySink() *memorySink {
	return &memorySink{objects: map[string][]byte{}}
}

func (s *memorySink) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.objects[key] = slices.Clone(body)
	s.order = append(s.order, key)
	return "mem://" + key, nil
}

var errStoreDown = errors.NewStd("store unavailable")

// fixedClock returns the same instant on every call.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// advances reports whether next sorts strictly after prev.
func advances(prev, next Keyset) bool {
	if next.CreatedAt.After(prev.CreatedAt) {
		return true
	}
	return next.CreatedAt.Equal(prev.CreatedAt) && compareIDs(next.ID, prev.ID) > 0
}
