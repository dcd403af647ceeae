package docsource

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/datamover/internal/conf"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/migrate"
)

// countingSink accepts every insert.
type countingSink struct {
	products int
}

func (s *countingSink) Begin(context.Context) (migrate.SinkTx, error) {
	return &countingTx{sink: s}, nil
}

type countingTx struct {
	sink   *countingSink
	staged int
}

func (tx *countingTx) InsertProducts(_ context.Context, rows []migrate.ProductRow) error {
	tx.staged += len(rows)
	return nil
}

func (tx *countingTx) InsertProduct(context.Context, migrate.ProductRow) error {
	tx.staged++
	return nil
}

func (tx *countingTx) InsertTags(context.Context, []migrate.TagRow) error { return nil }

func (tx *countingTx) Commit() error {
	tx.sink.products += tx.staged
	return nil
}

func (tx *countingTx) Rollback() error { return nil }

// scanPage is one scripted SCAN reply.
type scanPage struct {
	keys []string
	next uint64
}

type fakeKV struct {
	pages   map[uint64]scanPage
	values  map[string]any
	scanErr error
	counts  []int64
	closed  bool
}

func (f *fakeKV) Scan(_ context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if f.scanErr != nil {
		return nil, 0, f.scanErr
	}
	f.counts = append(f.counts, count)
	p := f.pages[cursor]
	return p.keys, p.next, nil
}

func (f *fakeKV) MGet(_ context.Context, keys ...string) ([]any, error) {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = f.values[k]
	}
	return out, nil
}

func (f *fakeKV) Close() error {
	f.closed = true
	return nil
}

func TestRedisSource_ReadsAllPages(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{
		pages: map[uint64]scanPage{
			0:  {keys: []string{"product:1", "product:2"}, next: 17},
			17: {keys: []string{}, next: 23}, // empty SCAN step
			23: {keys: []string{"product:2", "product:3"}, next: 0},
		},
		values: map[string]any{
			"product:1": `{"id":"1","price":9.99}`,
			"product:2": `{"id":"2","tags":["a","b"]}`,
			"product:3": `{"id":"3"}`,
		},
	}
	src := newRedisSource(kv, "product:*")

	first, err := src.ReadPage(t.Context(), 2)
	require.NoError(t, err)
	assert.True(t, first.HasMore)
	assert.Equal(t, "17", first.Token)
	require.Len(t, first.Docs, 2)
	assert.Equal(t, json.Number("9.99"), first.Docs[0]["price"])

	// the empty step is absorbed and the repeated key is dropped
	second, err := src.ReadPage(t.Context(), 2)
	require.NoError(t, err)
	assert.False(t, second.HasMore)
	require.Len(t, second.Docs, 1)
	id, ok := second.Docs[0].StringID("id")
	require.True(t, ok)
	assert.Equal(t, "3", id)

	third, err := src.ReadPage(t.Context(), 2)
	require.NoError(t, err)
	assert.Empty(t, third.Docs)
	assert.False(t, third.HasMore)

	assert.Equal(t, []int64{2, 2, 2}, kv.counts)
	require.NoError(t, src.Close())
	assert.True(t, kv.closed)
}

func TestRedisSource_UndecodableAndDeletedValues(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{
		pages: map[uint64]scanPage{
			0: {keys: []string{"k1", "k2", "k3", "k4"}, next: 0},
		},
		values: map[string]any{
			"k1": `{"id":"1"}`,
			"k2": `{broken`,
			// k3 deleted between SCAN and MGET
			"k4": []byte(`{"id":"4"}`),
		},
	}
	src := newRedisSource(kv, "")
	assert.Equal(t, DefaultKeyPattern, src.pattern)

	page, err := src.ReadPage(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, page.Docs, 3)
	assert.Equal(t, "1", page.Docs[0]["id"])
	assert.Equal(t, "k2", page.Docs[1][KeyField])
	_, ok := page.Docs[1].StringID("id")
	assert.False(t, ok, "undecodable documents fail mapping downstream")
	assert.Equal(t, "4", page.Docs[2]["id"])
}

func TestRedisSource_CapsPagesWhenScanOvershoots(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{
		pages: map[uint64]scanPage{
			0: {keys: []string{"p:1", "p:2", "p:3"}, next: 9},
			9: {keys: []string{"p:4"}, next: 0},
		},
		values: map[string]any{
			"p:1": `{"id":"1"}`,
			"p:2": `{"id":"2"}`,
			"p:3": `{"id":"3"}`,
			"p:4": `{"id":"4"}`,
		},
	}
	src := newRedisSource(kv, "p:*")

	var ids []any
	var sizes []int
	for range 5 {
		page, err := src.ReadPage(t.Context(), 2)
		require.NoError(t, err)
		if len(page.Docs) == 0 {
			assert.False(t, page.HasMore)
			break
		}
		sizes = append(sizes, len(page.Docs))
		for _, d := range page.Docs {
			ids = append(ids, d["id"])
		}
		if !page.HasMore {
			break
		}
	}

	assert.Equal(t, []int{2, 1, 1}, sizes, "held-over key is served before scanning on")
	assert.Equal(t, []any{"1", "2", "3", "4"}, ids)
	assert.Equal(t, []int64{2, 2}, kv.counts)
}

func TestRedisSource_MigrationWithOvershootingScan(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{
		pages: map[uint64]scanPage{
			0: {keys: []string{"p:1", "p:2", "p:3"}, next: 0},
		},
		values: map[string]any{
			"p:1": `{"id":"1","name":"one"}`,
			"p:2": `{"id":"2","name":"two"}`,
			"p:3": `{"id":"3","name":"three"}`,
		},
	}
	sink := &countingSink{}

	p, err := migrate.NewPipeline(migrate.Config{BatchSize: 2}, newRedisSource(kv, "p:*"), sink, nil)
	require.NoError(t, err)

	report, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, etl.StatusCompleted, report.Status)
	assert.Equal(t, 3, report.RecordsRead)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, 3, sink.products)
}

func TestRedisSource_SeenWindowIsBounded(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{
		pages: map[uint64]scanPage{
			0: {keys: []string{"a", "b"}, next: 1},
			1: {keys: []string{"c"}, next: 2},
			2: {keys: []string{"a"}, next: 0},
		},
		values: map[string]any{
			"a": `{"id":"a"}`,
			"b": `{"id":"b"}`,
			"c": `{"id":"c"}`,
		},
	}
	src := newRedisSource(kv, "*")
	src.seenLimit = 2

	var ids []any
	for {
		page, err := src.ReadPage(t.Context(), 5)
		require.NoError(t, err)
		for _, d := range page.Docs {
			ids = append(ids, d["id"])
		}
		if !page.HasMore {
			break
		}
	}

	// the window was reset after "a" and "b", so the late repeat is read again
	assert.Equal(t, []any{"a", "b", "c", "a"}, ids)
	assert.LessOrEqual(t, src.seen.ItemCount(), 2)
}

func TestRedisSource_ScanError(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{scanErr: errors.New("connection refused")}
	src := newRedisSource(kv, "*")

	_, err := src.ReadPage(t.Context(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisSource_CanceledScan(t *testing.T) {
	t.Parallel()
	kv := &fakeKV{scanErr: context.Canceled}
	src := newRedisSource(kv, "*")

	_, err := src.ReadPage(t.Context(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_SourceTypes(t *testing.T) {
	t.Parallel()

	src, err := New(t.Context(), conf.DocumentSourceSettings{
		Type:      TypeHTTP,
		URL:       "https://acct.example.com/",
		Key:       testKey,
		Database:  "shop",
		Container: "products",
	}, Options{})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = New(t.Context(), conf.DocumentSourceSettings{Type: TypeRedis, URL: "not a url"}, Options{})
	require.Error(t, err)

	_, err = New(t.Context(), conf.DocumentSourceSettings{Type: "kafka"}, Options{})
	require.Error(t, err)
}
