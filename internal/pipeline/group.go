package pipeline

import (
	"fmt"
	"strings"

	"github.com/mongolite/mongolite/internal/query"
	"github.com/mongolite/mongolite/pkg/document"
)

// accumulator holds the running state for one output field of one
// bucket.
type accumulator struct {
	op     string
	arg    any
	sum    float64
	intSum bool
	bound  any  // $min / $max running bound
	seeded bool // bound has been set at least once
	items  []any
}

type bucket struct {
	key   any
	count int
	accs  map[string]*accumulator
}

func stageGroup(docs []*document.Document, spec any) ([]*document.Document, error) {
	groupSpec, ok := spec.(*document.Document)
	if !ok {
		return nil, fmt.Errorf("%w: $group requires a document", query.ErrInvalidQuery)
	}

	idExpr, _ := groupSpec.Get("_id")

	type accSpec struct {
		field string
		op    string
		arg   any
	}
	var accSpecs []accSpec
	for _, field := range groupSpec.Keys() {
		if field == "_id" {
			continue
		}
		v, _ := groupSpec.Get(field)
		acc, ok := v.(*document.Document)
		if !ok || acc.Len() != 1 {
			return nil, fmt.Errorf("%w: accumulator for %s must be a single-operator document", query.ErrInvalidQuery, field)
		}
		op := acc.Keys()[0]
		switch op {
		case "$sum", "$avg", "$min", "$max", "$push", "$addToSet":
		default:
			return nil, fmt.Errorf("%w: unsupported group accumulator %s", query.ErrInvalidQuery, op)
		}
		arg, _ := acc.Get(op)
		accSpecs = append(accSpecs, accSpec{field: field, op: op, arg: arg})
	}

	buckets := make(map[string]*bucket)
	var order []string

	for _, d := range docs {
		key := evalExpr(d, idExpr)
		ck := document.Canonical(key)

		b, ok := buckets[ck]
		if !ok {
			b = &bucket{key: key, accs: make(map[string]*accumulator)}
			for _, s := range accSpecs {
				b.accs[s.field] = &accumulator{op: s.op, arg: s.arg, intSum: true}
			}
			buckets[ck] = b
			order = append(order, ck)
		}
		b.count++

		for _, s := range accSpecs {
			acc := b.accs[s.field]
			val := evalExpr(d, s.arg)
			switch s.op {
			case "$sum", "$avg":
				// Missing and non-numeric values count as zero.
				if n, isInt, ok := asNumber(val); ok {
					acc.sum += n
					if !isInt {
						acc.intSum = false
					}
				}
			case "$min":
				// Null and missing values never move the bound.
				if val == nil {
					break
				}
				if !acc.seeded {
					acc.bound, acc.seeded = val, true
				} else if document.Compare(val, acc.bound) < 0 {
					acc.bound = val
				}
			case "$max":
				if val == nil {
					break
				}
				if !acc.seeded {
					acc.bound, acc.seeded = val, true
				} else if document.Compare(val, acc.bound) > 0 {
					acc.bound = val
				}
			case "$push":
				acc.items = append(acc.items, document.Clone(val))
			case "$addToSet":
				if !groupContains(acc.items, val) {
					acc.items = append(acc.items, document.Clone(val))
				}
			}
		}
	}

	out := make([]*document.Document, 0, len(order))
	for _, ck := range order {
		b := buckets[ck]
		doc := document.New()
		doc.Set("_id", b.key)
		for _, s := range accSpecs {
			acc := b.accs[s.field]
			switch s.op {
			case "$sum":
				if acc.intSum {
					doc.Set(s.field, int64(acc.sum))
				} else {
					doc.Set(s.field, acc.sum)
				}
			case "$avg":
				doc.Set(s.field, acc.sum/float64(b.count))
			case "$min", "$max":
				doc.Set(s.field, acc.bound)
			case "$push", "$addToSet":
				items := acc.items
				if items == nil {
					items = []any{}
				}
				doc.Set(s.field, items)
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

// evalExpr resolves a group expression: a string prefixed with $ is a
// field reference (missing fields yield nil), anything else is a
// constant.
func evalExpr(d *document.Document, expr any) any {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		val, ok := document.Get(d, s[1:])
		if !ok {
			return nil
		}
		return val
	}
	return expr
}

func groupContains(arr []any, v any) bool {
	for _, item := range arr {
		if document.Equal(item, v) {
			return true
		}
	}
	return false
}

func asNumber(v any) (n float64, isInt bool, ok bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true, true
	case float64:
		return t, false, true
	}
	return 0, false, false
}
