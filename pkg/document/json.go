package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MarshalJSON encodes the document with fields in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, d, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order. Integral
// numbers decode to int64, all others to float64.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	doc, ok := v.(*Document)
	if !ok {
		return fmt.Errorf("document: expected JSON object, got %T", v)
	}
	*d = *doc
	return nil
}

// Parse decodes a JSON object into a document.
func Parse(data []byte) (*Document, error) {
	d := New()
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

// Canonical renders a value as JSON with document keys sorted, so equal
// values always produce the same string. Used for grouping and
// uniqueness checks.
func Canonical(v any) string {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, true); err != nil {
		return fmt.Sprintf("!%v", err)
	}
	return buf.String()
}

func encodeValue(buf *bytes.Buffer, v any, canonical bool) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool, int64, float64, string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e, canonical); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Document:
		keys := t.keys
		if canonical {
			keys = t.Keys()
			sort.Strings(keys)
		}
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeValue(buf, t.fields[k], canonical); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("document: unsupported value type %T", v)
	}
	return nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := New()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("document: object key is %T", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				doc.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // closing '}'
				return nil, err
			}
			return doc, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("document: unexpected delimiter %v", t)
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return n, nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		// string, bool or nil
		return t, nil
	}
}
