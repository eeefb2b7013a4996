// Copyright (c) 2026 Ecodam. All rights reserved.

package docstore

import "time"

// # Document Model

// Document is a single path-addressed record of the hierarchical store.
//
// Data is schemaless JSON content. Numbers read back from storage follow
// encoding/json semantics (float64); use the typed accessors below instead
// of asserting concrete types.
type Document struct {
	// Path is the full document path, e.g. "users/alice/rank_accounts/r1".
	Path string `json:"path"`

	// Collection is the full parent collection path.
	Collection string `json:"-"`

	// Group is the collection name (last collection segment), the key for
	// cross-parent group queries.
	Group string `json:"-"`

	// ID is the final document id segment.
	ID string `json:"id"`

	// Data is the document content.
	Data map[string]any `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// newDocument builds a Document with the derived path fields populated.
func newDocument(path string, data map[string]any, createdAt, updatedAt time.Time) *Document {
	return &Document{
		Path:       path,
		Collection: CollectionOf(path),
		Group:      GroupOf(path),
		ID:         IDOf(path),
		Data:       data,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}

// clone returns a deep-enough copy so callers can never alias backend state.
// Nested maps are rare in this store and are shared; top-level mutation is
// the case that bites.
func (d *Document) clone() *Document {
	copied := *d
	copied.Data = cloneData(d.Data)
	return &copied
}

// cloneData shallow-copies a content map, treating nil as empty.
func cloneData(data map[string]any) map[string]any {
	copied := make(map[string]any, len(data))
	for key, value := range data {
		copied[key] = value
	}
	return copied
}

// # Typed Accessors

// Str returns the string value of a content field, or "" when absent or of
// another type.
func (d *Document) Str(key string) string {
	value, _ := d.Data[key].(string)
	return value
}

// Int returns the integer value of a content field, accepting the float64
// representation JSON decoding produces. Absent or non-numeric fields
// return 0.
func (d *Document) Int(key string) int {
	switch value := d.Data[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

// Bool returns the boolean value of a content field, or false when absent.
func (d *Document) Bool(key string) bool {
	value, _ := d.Data[key].(bool)
	return value
}
