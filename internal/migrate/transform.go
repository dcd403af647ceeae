package migrate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tphakala/datamover/internal/etl"
)

// Document field names.
const (
	FieldID       = "id"
	FieldName     = "name"
	FieldPrice    = "price"
	FieldCategory = "category"
	FieldTags     = "tags"
)

// ProductRow is the primary sink row. A nil field is stored as NULL; a nil
// Price means the price is unknown.
type ProductRow struct {
	ID       string
	Name     *string
	Price    *float64
	Category *string
}

// TagRow is one child row of a product.
type TagRow struct {
	ProductID string
	Tag       string
}

// MappingError reports a document that cannot become a product row.
type MappingError struct {
	DocID  string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.DocID == "" {
		return fmt.Sprintf("map document: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("map document %s: %s: %s", e.DocID, e.Field, e.Reason)
}

// MapProduct maps one document to its product row and tag rows.
func MapProduct(doc etl.Record) (ProductRow, []TagRow, error) {
	id, ok := doc.StringID(FieldID)
	if !ok {
		return ProductRow{}, nil, &MappingError{Field: FieldID, Reason: "missing or blank"}
	}

	name, err := scalarText(doc[FieldName])
	if err != nil {
		return ProductRow{}, nil, &MappingError{DocID: id, Field: FieldName, Reason: err.Error()}
	}
	category, err := scalarText(doc[FieldCategory])
	if err != nil {
		return ProductRow{}, nil, &MappingError{DocID: id, Field: FieldCategory, Reason: err.Error()}
	}

	row := ProductRow{
		ID:       id,
		Name:     name,
		Price:    NormalizePrice(doc[FieldPrice]),
		Category: category,
	}
	return row, mapTags(id, doc[FieldTags]), nil
}

// NormalizePrice converts a price field to a float. Absent, unparsable and
// non-finite values yield nil.
func NormalizePrice(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// mapTags emits one row per list element. Anything other than a list means no tags.
func mapTags(productID string, v any) []TagRow {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		items = make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
	default:
		return nil
	}

	rows := make([]TagRow, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rows = append(rows, TagRow{ProductID: productID, Tag: fmt.Sprint(item)})
	}
	return rows
}

func scalarText(v any) (*string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int, int32, int64, uint64, bool:
		s = fmt.Sprint(t)
	default:
		return nil, fmt.Errorf("expected a scalar, got %T", v)
	}
	return &s, nil
}
