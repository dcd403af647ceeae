package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/datamover/internal/etl"
)

// stuckSource keeps returning the same page.
type stuckSource struct {
	memorySource
	page []etl.Record
}

func (s *stuckSource) FetchBatch(context.Context, Filter, int) ([]etl.Record, error) {
	return s.page, nil
}

func TestKeysetPaginatorWalksTiesByID(t *testing.T) {
	t.Parallel()

	same := runStart.Add(-days(40))
	source := newMemorySource(
		etl.Record{"id": int64(3), "createdOn": same},
		etl.Record{"id": int64(1), "createdOn": same},
		etl.Record{"id": int64(2), "createdOn": same},
		etl.Record{"id": int64(4), "createdOn": runStart},
	)
	p := newKeysetPaginator(source, runStart.Add(-days(30)), 2, "createdOn", "id")

	first, err := p.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, idsOf(first))
	assert.False(t, p.Done())

	second, err := p.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3)}, idsOf(second))

	// short page: no further query is issued
	fetches := source.fetches
	third, err := p.Next(t.Context())
	require.NoError(t, err)
	assert.True(t, third.Empty())
	assert.True(t, p.Done())
	assert.Equal(t, fetches, source.fetches)
}

func TestKeysetPaginatorDetectsStuckCursor(t *testing.T) {
	t.Parallel()

	page := []etl.Record{
		{"id": int64(1), "createdOn": runStart.Add(-days(40))},
		{"id": int64(2), "createdOn": runStart.Add(-days(40))},
	}
	p := newKeysetPaginator(&stuckSource{page: page}, runStart, 2, "createdOn", "id")

	_, err := p.Next(t.Context())
	require.NoError(t, err)
	_, err = p.Next(t.Context())
	require.Error(t, err)
}

// pagedSource returns scripted pages in order.
type pagedSource struct {
	memorySource
	pages [][]etl.Record
}

func (s *pagedSource) FetchBatch(context.Context, Filter, int) ([]etl.Record, error) {
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func TestKeysetPaginatorFollowsStoreCollation(t *testing.T) {
	t.Parallel()

	// a case-insensitive collation orders "C" after "b"; byte order does not
	same := runStart.Add(-days(40))
	source := &pagedSource{pages: [][]etl.Record{
		{{"id": "a", "createdOn": same}, {"id": "b", "createdOn": same}},
		{{"id": "C", "createdOn": same}, {"id": "d", "createdOn": same}},
		{{"id": "E", "createdOn": same}},
	}}
	p := newKeysetPaginator(source, runStart, 2, "createdOn", "id")

	var ids []any
	for {
		b, err := p.Next(t.Context())
		require.NoError(t, err)
		if b.Empty() {
			break
		}
		ids = append(ids, idsOf(b)...)
	}
	assert.Equal(t, []any{"a", "b", "C", "d", "E"}, ids)
}

func TestKeysetPaginatorRejectsTimeGoingBack(t *testing.T) {
	t.Parallel()

	source := &pagedSource{pages: [][]etl.Record{
		{{"id": int64(1), "createdOn": runStart.Add(-days(40))}, {"id": int64(2), "createdOn": runStart.Add(-days(39))}},
		{{"id": int64(3), "createdOn": runStart.Add(-days(41))}},
	}}
	p := newKeysetPaginator(source, runStart, 2, "createdOn", "id")

	_, err := p.Next(t.Context())
	require.NoError(t, err)
	_, err = p.Next(t.Context())
	require.Error(t, err)
}

func TestCompareIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"uint", uint(9), uint(10), -1},
		{"int16", int16(10), int16(9), 1},
		{"uint8 vs int64", uint8(7), int64(7), 0},
		{"float32", float32(1.5), float32(2.5), -1},
		{"mixed int and float", int32(2), 1.5, 1},
		{"large int64 exact", int64(1<<62 + 1), int64(1 << 62), 1},
		{"huge uint64", uint64(1 << 63), int64(1), 1},
		{"bytes", []byte("10"), []byte("9"), 1},
		{"strings", "a", "b", -1},
		{"equal strings", "x", "x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, compareIDs(tt.a, tt.b))
		})
	}
}

func TestKeysetPaginatorParsesStringTimestamps(t *testing.T) {
	t.Parallel()

	page := []etl.Record{{"id": "a", "createdOn": "2026-01-01 10:00:00"}}
	p := newKeysetPaginator(&stuckSource{page: page}, time.Now(), 5, "createdOn", "id")

	batch, err := p.Next(t.Context())
	require.NoError(t, err)
	assert.Contains(t, batch.Position, "2026-01-01T10:00:00")
}

func idsOf(b etl.Batch) []any {
	out := make([]any, 0, b.Len())
	for _, r := range b.Records {
		out = append(out, r["id"])
	}
	return out
}
