package document

import (
	"sort"
	"strings"
)

// Document is an ordered string-keyed mapping of values. Field order is
// preserved across set/marshal/unmarshal so stored documents round-trip
// byte-for-byte.
//
// Field values are one of: nil, bool, int64, float64, string, []any or
// *Document. Set normalizes other Go numeric types and map[string]any
// into this closed set.
type Document struct {
	keys   []string
	fields map[string]any
}

// New creates an empty document.
func New() *Document {
	return &Document{fields: make(map[string]any)}
}

// FromMap builds a document from a plain map. Keys are added in sorted
// order since Go maps have no iteration order of their own.
func FromMap(m map[string]any) *Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := New()
	for _, k := range keys {
		d.Set(k, m[k])
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.keys)
}

// Keys returns the field names in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Has reports whether the field exists.
func (d *Document) Has(key string) bool {
	_, ok := d.fields[key]
	return ok
}

// Get returns the value of a top-level field.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.fields[key]
	return v, ok
}

// Set stores a top-level field, appending the key if it is new.
func (d *Document) Set(key string, v any) {
	if _, ok := d.fields[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.fields[key] = Normalize(v)
}

// Remove deletes a top-level field. No-op if the field is absent.
func (d *Document) Remove(key string) {
	if _, ok := d.fields[key]; !ok {
		return
	}
	delete(d.fields, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Normalize coerces a value into the closed value set: Go integer types
// become int64, float32 becomes float64, map[string]any becomes *Document
// and slice elements are normalized recursively.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		return FromMap(t)
	case *Document:
		return t
	default:
		return t
	}
}

// Path addressing. A path is a period-separated key sequence; every
// segment is a map key, numeric segments never index into arrays.

// Get resolves a dotted path inside nested documents. The second return
// is false when any intermediate segment is missing or not a document.
func Get(d *Document, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = d
	for _, p := range parts {
		doc, ok := cur.(*Document)
		if !ok {
			return nil, false
		}
		cur, ok = doc.Get(p)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes a value at a dotted path, creating intermediate documents as
// needed and overwriting any non-document intermediate.
func Set(d *Document, path string, v any) {
	parts := strings.Split(path, ".")
	cur := d
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.Get(p)
		child, isDoc := next.(*Document)
		if !ok || !isDoc {
			child = New()
			cur.Set(p, child)
		}
		cur = child
	}
	cur.Set(parts[len(parts)-1], v)
}

// Unset removes the field at a dotted path. No-op if any intermediate
// segment is missing or not a document.
func Unset(d *Document, path string) {
	parts := strings.Split(path, ".")
	cur := d
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.Get(p)
		if !ok {
			return
		}
		child, isDoc := next.(*Document)
		if !isDoc {
			return
		}
		cur = child
	}
	cur.Remove(parts[len(parts)-1])
}

// Clone returns a structural deep copy of a value. Documents and arrays
// are copied recursively; scalars are returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case *Document:
		return CloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return t
	}
}

// CloneDocument deep-copies a document, preserving field order.
func CloneDocument(d *Document) *Document {
	out := New()
	for _, k := range d.keys {
		out.Set(k, Clone(d.fields[k]))
	}
	return out
}
