// Package query evaluates declarative filter documents against single
// documents, in the style of the MongoDB query language.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mongolite/mongolite/pkg/document"
)

// ErrInvalidQuery reports a malformed filter: wrong logical clause shape,
// unknown operator or a non-document where a document is required.
var ErrInvalidQuery = errors.New("invalid query")

// Match reports whether doc satisfies the filter. An empty filter
// matches every document.
func Match(doc *document.Document, filter *document.Document) (bool, error) {
	if filter == nil {
		return true, nil
	}
	for _, key := range filter.Keys() {
		cond, _ := filter.Get(key)

		var ok bool
		var err error
		switch key {
		case "$and", "$or", "$not":
			ok, err = evalLogical(doc, key, cond)
		default:
			ok, err = evalField(doc, key, cond)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalLogical(doc *document.Document, op string, cond any) (bool, error) {
	if op == "$not" {
		clause, ok := cond.(*document.Document)
		if !ok {
			return false, fmt.Errorf("%w: $not requires a single clause document", ErrInvalidQuery)
		}
		matched, err := Match(doc, clause)
		if err != nil {
			return false, err
		}
		return !matched, nil
	}

	clauses, ok := cond.([]any)
	if !ok {
		return false, fmt.Errorf("%w: %s requires a list of clauses", ErrInvalidQuery, op)
	}
	for _, c := range clauses {
		clause, ok := c.(*document.Document)
		if !ok {
			return false, fmt.Errorf("%w: %s clause must be a document", ErrInvalidQuery, op)
		}
		matched, err := Match(doc, clause)
		if err != nil {
			return false, err
		}
		if op == "$and" && !matched {
			return false, nil
		}
		if op == "$or" && matched {
			return true, nil
		}
	}
	// $and over an empty list is vacuously true, $or vacuously false.
	return op == "$and", nil
}

func evalField(doc *document.Document, path string, cond any) (bool, error) {
	val, present := document.Get(doc, path)

	ops, isDoc := cond.(*document.Document)
	if !isDoc {
		// Literal value: implicit equality against a present field.
		return present && document.Equal(val, cond), nil
	}

	for _, op := range ops.Keys() {
		arg, _ := ops.Get(op)
		ok, err := evalOp(val, present, op, arg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalOp(val any, present bool, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return present && document.Equal(val, arg), nil
	case "$ne":
		return !present || !document.Equal(val, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		c, ok := document.CompareOrdered(val, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s requires an array argument", ErrInvalidQuery, op)
		}
		found := false
		if present {
			for _, item := range list {
				if document.Equal(val, item) {
					found = true
					break
				}
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $exists requires a boolean argument", ErrInvalidQuery)
		}
		return present == want, nil
	case "$regex":
		s, ok := val.(string)
		if !present || !ok {
			return false, nil
		}
		re, err := compileRegex(arg)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case "$size":
		want, ok := asInt(arg)
		if !ok {
			return false, fmt.Errorf("%w: $size requires an integer argument", ErrInvalidQuery)
		}
		switch t := val.(type) {
		case []any:
			return int64(len(t)) == want, nil
		case string:
			return int64(utf8.RuneCountInString(t)) == want, nil
		}
		return false, nil
	case "$all":
		items, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("%w: $all requires an array argument", ErrInvalidQuery)
		}
		arr, ok := val.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range items {
			if !containsEqual(arr, item) {
				return false, nil
			}
		}
		return true, nil
	case "$elemMatch":
		arr, ok := val.([]any)
		if !ok {
			return false, nil
		}
		for _, elem := range arr {
			var matched bool
			var err error
			if sub, isDoc := elem.(*document.Document); isDoc {
				spec, specOK := arg.(*document.Document)
				if !specOK {
					return false, fmt.Errorf("%w: $elemMatch requires a document argument", ErrInvalidQuery)
				}
				matched, err = Match(sub, spec)
			} else {
				matched, err = MatchScalar(elem, arg)
			}
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: unsupported operator %s", ErrInvalidQuery, op)
}

// MatchScalar evaluates an operator spec against a single non-document
// value, as used by $elemMatch over scalar elements and by $pull. A
// non-document spec is an equality test; a document spec requires every
// listed operator to hold. Only scalar operators are allowed here.
func MatchScalar(val any, spec any) (bool, error) {
	ops, isDoc := spec.(*document.Document)
	if !isDoc {
		return document.Equal(val, spec), nil
	}
	for _, op := range ops.Keys() {
		arg, _ := ops.Get(op)
		switch op {
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$in", "$nin":
			ok, err := evalOp(val, true, op, arg)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: unsupported scalar operator %s", ErrInvalidQuery, op)
		}
	}
	return true, nil
}

func compileRegex(arg any) (*regexp.Regexp, error) {
	pattern := ""
	options := ""
	switch t := arg.(type) {
	case string:
		pattern = t
	case *document.Document:
		if p, ok := t.Get("pattern"); ok {
			s, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $regex pattern must be a string", ErrInvalidQuery)
			}
			pattern = s
		}
		if o, ok := t.Get("options"); ok {
			s, ok := o.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $regex options must be a string", ErrInvalidQuery)
			}
			options = s
		}
	default:
		return nil, fmt.Errorf("%w: $regex must be a string or {pattern, options} document", ErrInvalidQuery)
	}

	var flags []string
	for _, f := range []string{"i", "m", "s"} {
		if strings.Contains(options, f) {
			flags = append(flags, f)
		}
	}
	if len(flags) > 0 {
		pattern = "(?" + strings.Join(flags, "") + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad $regex pattern: %v", ErrInvalidQuery, err)
	}
	return re, nil
}

func containsEqual(arr []any, v any) bool {
	for _, item := range arr {
		if document.Equal(item, v) {
			return true
		}
	}
	return false
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	}
	return 0, false
}
