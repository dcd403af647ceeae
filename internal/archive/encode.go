package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// EncodeNDJSON renders records as newline-delimited JSON, one object per line.
// Timestamps become RFC 3339 strings and byte slices become text.
func EncodeNDJSON(records []etl.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, r := range records {
		if err := enc.Encode(normalizeRecord(r)); err != nil {
			return nil, errors.New(fmt.Errorf("encode record %d: %w", i, err)).
				Component("archive").
				Category(errors.CategorySerialization).
				Build()
		}
	}
	return buf.Bytes(), nil
}

func normalizeRecord(r etl.Record) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil
		}
		return t
	case map[string]any:
		return normalizeRecord(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalizeValue(t[i])
		}
		return out
	default:
		return v
	}
}
