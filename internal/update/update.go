// Package update applies update-operator documents ($set, $inc, $push
// and friends) to documents, producing a new document each time.
package update

import (
	"errors"
	"fmt"

	"github.com/mongolite/mongolite/internal/query"
	"github.com/mongolite/mongolite/pkg/document"
)

// ErrInvalidUpdate reports an unknown update operator or an operator
// applied to a field of the wrong type.
var ErrInvalidUpdate = errors.New("invalid update")

// Apply runs every operator in the update spec against a deep copy of
// doc and returns the result; the input document is never mutated. An
// existing _id survives all operators. $setOnInsert is accepted but
// ignored here; the upsert path consumes it before seeding a new
// document.
func Apply(doc *document.Document, upd *document.Document, isUpsert bool) (*document.Document, error) {
	if upd == nil {
		return nil, fmt.Errorf("%w: update must be a document of operators", ErrInvalidUpdate)
	}

	out := document.CloneDocument(doc)
	origID, hadID := doc.Get("_id")
	origIdx := 0
	for i, k := range doc.Keys() {
		if k == "_id" {
			origIdx = i
			break
		}
	}

	for _, op := range upd.Keys() {
		arg, _ := upd.Get(op)
		if op == "$setOnInsert" {
			continue
		}
		changes, ok := arg.(*document.Document)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a document argument", ErrInvalidUpdate, op)
		}
		if err := applyOp(out, op, changes); err != nil {
			return nil, err
		}
	}

	if hadID {
		if cur, ok := out.Get("_id"); !ok || !document.Equal(cur, origID) {
			out = restoreID(out, origID, origIdx)
		}
	}
	return out, nil
}

// restoreID rebuilds the document with _id back at its original key
// position, so removing or renaming _id never reorders fields.
func restoreID(d *document.Document, id any, idx int) *document.Document {
	d.Remove("_id")
	keys := d.Keys()
	if idx > len(keys) {
		idx = len(keys)
	}
	out := document.New()
	for i, k := range keys {
		if i == idx {
			out.Set("_id", id)
		}
		v, _ := d.Get(k)
		out.Set(k, v)
	}
	if idx == len(keys) {
		out.Set("_id", id)
	}
	return out
}

func applyOp(out *document.Document, op string, changes *document.Document) error {
	for _, path := range changes.Keys() {
		arg, _ := changes.Get(path)

		switch op {
		case "$set":
			document.Set(out, path, document.Clone(arg))

		case "$unset":
			document.Unset(out, path)

		case "$inc", "$mul":
			if err := applyNumeric(out, op, path, arg); err != nil {
				return err
			}

		case "$rename":
			newPath, ok := arg.(string)
			if !ok {
				return fmt.Errorf("%w: $rename target for %s must be a string", ErrInvalidUpdate, path)
			}
			if val, ok := document.Get(out, path); ok {
				document.Unset(out, path)
				document.Set(out, newPath, val)
			}

		case "$push":
			arr, err := arrayAt(out, op, path)
			if err != nil {
				return err
			}
			items, err := eachItems(arg)
			if err != nil {
				return err
			}
			for _, item := range items {
				arr = append(arr, document.Clone(item))
			}
			document.Set(out, path, arr)

		case "$pull":
			arr, err := arrayAt(out, op, path)
			if err != nil {
				return err
			}
			kept := make([]any, 0, len(arr))
			for _, x := range arr {
				matched, err := query.MatchScalar(x, arg)
				if err != nil {
					return fmt.Errorf("%w: $pull: %v", ErrInvalidUpdate, err)
				}
				if !matched {
					kept = append(kept, x)
				}
			}
			document.Set(out, path, kept)

		case "$pullAll":
			drop, ok := arg.([]any)
			if !ok {
				return fmt.Errorf("%w: $pullAll requires an array argument for %s", ErrInvalidUpdate, path)
			}
			arr, err := arrayAt(out, op, path)
			if err != nil {
				return err
			}
			kept := make([]any, 0, len(arr))
			for _, x := range arr {
				if !containsEqual(drop, x) {
					kept = append(kept, x)
				}
			}
			document.Set(out, path, kept)

		case "$addToSet":
			arr, err := arrayAt(out, op, path)
			if err != nil {
				return err
			}
			items, err := eachItems(arg)
			if err != nil {
				return err
			}
			for _, item := range items {
				if !containsEqual(arr, item) {
					arr = append(arr, document.Clone(item))
				}
			}
			document.Set(out, path, arr)

		case "$pop":
			dir, ok := asInt(arg)
			if !ok || (dir != 1 && dir != -1) {
				return fmt.Errorf("%w: $pop value must be 1 or -1", ErrInvalidUpdate)
			}
			arr, err := arrayAt(out, op, path)
			if err != nil {
				return err
			}
			if len(arr) > 0 {
				if dir == 1 {
					arr = arr[:len(arr)-1]
				} else {
					arr = arr[1:]
				}
			}
			document.Set(out, path, arr)

		default:
			return fmt.Errorf("%w: unsupported update operator %s", ErrInvalidUpdate, op)
		}
	}
	return nil
}

func applyNumeric(out *document.Document, op, path string, arg any) error {
	operand, ok := asNumber(arg)
	if !ok {
		return fmt.Errorf("%w: %s requires a numeric argument for %s", ErrInvalidUpdate, op, path)
	}

	var cur float64
	curInt := true
	if v, present := document.Get(out, path); present {
		n, ok := asNumber(v)
		if !ok {
			return fmt.Errorf("%w: %s requires a numeric field: %s", ErrInvalidUpdate, op, path)
		}
		cur = n
		_, curInt = v.(int64)
	}

	var res float64
	if op == "$inc" {
		res = cur + operand
	} else {
		res = cur * operand
	}

	// Two integer operands keep the field integral.
	if _, argInt := document.Normalize(arg).(int64); argInt && curInt {
		document.Set(out, path, int64(res))
	} else {
		document.Set(out, path, res)
	}
	return nil
}

// arrayAt returns the array at path, treating an absent field as an
// empty array. Present non-array values are an error.
func arrayAt(out *document.Document, op, path string) ([]any, error) {
	v, present := document.Get(out, path)
	if !present {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an array field: %s", ErrInvalidUpdate, op, path)
	}
	return arr, nil
}

// eachItems unpacks a {$each: [...]} argument, or wraps a bare value.
func eachItems(arg any) ([]any, error) {
	spec, ok := arg.(*document.Document)
	if !ok {
		return []any{arg}, nil
	}
	each, ok := spec.Get("$each")
	if !ok {
		return []any{arg}, nil
	}
	items, ok := each.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: $each requires an array", ErrInvalidUpdate)
	}
	return items, nil
}

func containsEqual(arr []any, v any) bool {
	for _, item := range arr {
		if document.Equal(item, v) {
			return true
		}
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch t := document.Normalize(v).(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch t := document.Normalize(v).(type) {
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	}
	return 0, false
}
