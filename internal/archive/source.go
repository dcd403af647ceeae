package archive

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/datamover/internal/etl"
)

// Keyset is the (created, id) position of the last record handed out.
type Keyset struct {
	CreatedAt time.Time
	ID        any
}

func (k Keyset) String() string {
	return fmt.Sprintf("%s/%v", k.CreatedAt.UTC().Format(time.RFC3339Nano), k.ID)
}

// Filter selects records created before Cutoff and, when After is set,
// strictly after that keyset position.
type Filter struct {
	Cutoff time.Time
	After  *Keyset
}

// Source is the store that holds the records to archive.
type Source interface {
	// FetchBatch returns at most limit records matching filter, ordered by
	// creation time and then id.
	FetchBatch(ctx context.Context, filter Filter, limit int) ([]etl.Record, error)
	// BeginPurge opens the transaction used to delete one archived batch.
	BeginPurge(ctx context.Context) (PurgeTx, error)
}

// PurgeTx deletes records by id inside one transaction.
type PurgeTx interface {
	etl.Transaction
	Delete(ctx context.Context, ids []any) (int64, error)
}

// ObjectWriter stores one archive object and returns its location.
// Writing the same key again replaces the object.
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// asTime converts a scanned timestamp column into a time.Time.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		return parseTimestamp(t)
	case []byte:
		return parseTimestamp(string(t))
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp value %T", v)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// compareIDs orders two identifiers. Integers compare exactly, other
// numbers as floats, everything else by its string form.
func compareIDs(a, b any) int {
	if ai, ok := asInt(a); ok {
		if bi, ok := asInt(b); ok {
			return cmp.Compare(ai, bi)
		}
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return cmp.Compare(af, bf)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}
