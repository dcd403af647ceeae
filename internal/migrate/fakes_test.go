package migrate

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/tphakala/datamover/internal/etl"
)

// pagedSource serves documents in pages, optionally failing on a given read.
type pagedSource struct {
	docs    []etl.Record
	offset  int
	reads   int
	errOnce map[int]error // error returned on the n-th read (0-based)
}

func (s *pagedSource) ReadPage(_ context.Context, pageSize int) (Page, error) {
	read := s.reads
	s.reads++
	if err, ok := s.errOnce[read]; ok {
		return Page{}, err
	}
	end := min(s.offset+pageSize, len(s.docs))
	page := Page{Docs: s.docs[s.offset:end], HasMore: end < len(s.docs)}
	s.offset = end
	return page, nil
}

// memorySink is a product table with a primary key on id and a tag table
// without constraints.
type memorySink struct {
	mu        sync.Mutex
	products  map[string]ProductRow
	tags      []TagRow
	tagErr    error
	beginErr  error
	failBatch map[int]error // InsertProducts error on the n-th transaction (0-based)
	txs       int
	commits   int
	rollbacks int
	bulkCalls int
	rowCalls  int
}

func newMemorySink(existing ...ProductRow) *memorySink {
	s := &memorySink{products: map[string]ProductRow{}}
	for _, p := range existing {
		s.products[p.ID] = p
	}
	return s
}

func (s *memorySink) Begin(context.Context) (SinkTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx := &memorySinkTx{sink: s, seq: s.txs, products: map[string]ProductRow{}}
	s.txs++
	return tx, nil
}

func (s *memorySink) productIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.products))
}

type memorySinkTx struct {
	sink     *memorySink
	seq      int
	products map[string]ProductRow
	tags     []TagRow
}

func (t *memorySinkTx) exists(id string) bool {
	_, committed := t.sink.products[id]
	_, staged := t.products[id]
	return committed || staged
}

func (t *memorySinkTx) InsertProducts(_ context.Context, rows []ProductRow) error {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.bulkCalls++
	if err, ok := t.sink.failBatch[t.seq]; ok {
		return err
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if t.exists(r.ID) || seen[r.ID] {
			return ErrDuplicateKey
		}
		seen[r.ID] = true
	}
	for _, r := range rows {
		t.products[r.ID] = r
	}
	return nil
}

func (t *memorySinkTx) InsertProduct(_ context.Context, row ProductRow) error {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.rowCalls++
	if t.exists(row.ID) {
		return ErrDuplicateKey
	}
	t.products[row.ID] = row
	return nil
}

func (t *memorySinkTx) InsertTags(_ context.Context, rows []TagRow) error {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	if t.sink.tagErr != nil {
		return t.sink.tagErr
	}
	t.tags = append(t.tags, rows...)
	return nil
}

func (t *memorySinkTx) Commit() error {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.commits++
	maps.Copy(t.sink.products, t.products)
	t.sink.tags = append(t.sink.tags, t.tags...)
	return nil
}

func (t *memorySinkTx) Rollback() error {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.rollbacks++
	return nil
}

func product(id string, tags ...any) etl.Record {
	doc := etl.Record{"id": id, "name": "product " + id, "price": 9.5, "category": "tools"}
	if len(tags) > 0 {
		doc["tags"] = tags
	}
	return doc
}
