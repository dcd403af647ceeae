package etl

import (
	"fmt"
	"strings"
)

// Record is one source entity as an opaque field map.
type Record map[string]any

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

// StringID returns the record identifier under key rendered as a string.
// Missing, nil and blank identifiers report false.
func (r Record) StringID(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	var id string
	switch t := v.(type) {
	case string:
		id = t
	case []byte:
		id = string(t)
	default:
		id = fmt.Sprint(t)
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// Batch is a bounded, ordered slice of records plus the cursor position
// reached after it. Only the final batch of a run is empty.
type Batch struct {
	Records  []Record
	Position string
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}

// Empty reports whether the batch signals the end of the source.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}
