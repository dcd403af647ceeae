package archive

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/datamover/internal/etl"
)

func TestObjectNamer(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 23, 59, 58, 0, time.UTC)
	n := NewObjectNamer("orders", start, "")

	assert.Equal(t, "orders/2026/01/02/orders-20260102T235958Z.ndjson", n.Next(start))
	assert.Equal(t, "orders/2026/01/02/orders-20260102T235958Z-2.ndjson", n.Next(start))
	assert.Equal(t, "orders/2026/01/02/orders-20260102T235958Z-3.ndjson", n.Next(start.Add(500*time.Millisecond)))

	// batches after midnight stay in the partition of the run start
	later := start.Add(3 * time.Second)
	assert.Equal(t, "orders/2026/01/02/orders-20260103T000001Z.ndjson", n.Next(later))
}

func TestObjectNamerTagsKeysWithRun(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := NewObjectNamer("orders", start, "0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9")
	second := NewObjectNamer("orders", start, "ffeeddcc-bbaa-9988-7766-554433221100")

	assert.Equal(t, "orders/2026/01/02/orders-20260102T030405Z-0a1b2c3d4e5f.ndjson", first.Next(start))
	assert.Equal(t, "orders/2026/01/02/orders-20260102T030405Z-0a1b2c3d4e5f-2.ndjson", first.Next(start))
	assert.Equal(t, "orders/2026/01/02/orders-20260102T030405Z-ffeeddccbbaa.ndjson", second.Next(start))
}

func TestObjectNamerUsesUTC(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+3", 3*60*60)
	start := time.Date(2026, 5, 1, 1, 0, 0, 0, zone)
	n := NewObjectNamer("invoices", start, "")

	assert.Equal(t, "invoices/2026/04/30/invoices-20260430T220000Z.ndjson", n.Next(start))
}

func TestEncodeNDJSON(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 2, 3, 4, 5, 6, 7000, time.UTC)
	body, err := EncodeNDJSON([]etl.Record{
		{"id": 1, "createdOn": created, "note": "<b>&</b>"},
		{"id": 2, "blob": []byte("raw"), "ratio": math.NaN(), "nested": map[string]any{"at": created}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":1,"createdOn":"2026-02-03T04:05:06.000007Z","note":"<b>&</b>"}`, lines[0])
	assert.JSONEq(t, `{"id":2,"blob":"raw","ratio":null,"nested":{"at":"2026-02-03T04:05:06.000007Z"}}`, lines[1])
	assert.Contains(t, lines[0], "<b>&</b>", "html must not be escaped")
}

func TestEncodeNDJSONEmpty(t *testing.T) {
	t.Parallel()

	body, err := EncodeNDJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestEncodeNDJSONUnsupportedValue(t *testing.T) {
	t.Parallel()

	_, err := EncodeNDJSON([]etl.Record{{"ch": make(chan int)}})
	require.Error(t, err)
}
