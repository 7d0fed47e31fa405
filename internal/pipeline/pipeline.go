// Package pipeline interprets aggregation pipelines: an ordered list of
// single-key stage documents, each consuming the previous stage's
// output.
package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mongolite/mongolite/internal/query"
	"github.com/mongolite/mongolite/pkg/document"
)

// Run evaluates the stages in order over docs and returns the resulting
// document sequence. Input documents are never mutated.
func Run(docs []*document.Document, stages []*document.Document) ([]*document.Document, error) {
	out := docs
	for _, stage := range stages {
		if stage == nil || stage.Len() != 1 {
			return nil, fmt.Errorf("%w: each pipeline stage must have exactly one key", query.ErrInvalidQuery)
		}
		op := stage.Keys()[0]
		spec, _ := stage.Get(op)

		var err error
		switch op {
		case "$match":
			out, err = stageMatch(out, spec)
		case "$project":
			out, err = stageProject(out, spec)
		case "$sort":
			out, err = stageSort(out, spec)
		case "$skip":
			out, err = stageSkip(out, spec)
		case "$limit":
			out, err = stageLimit(out, spec)
		case "$group":
			out, err = stageGroup(out, spec)
		case "$count":
			doc := document.New()
			doc.Set("count", int64(len(out)))
			out = []*document.Document{doc}
		case "$unwind":
			out, err = stageUnwind(out, spec)
		default:
			return nil, fmt.Errorf("%w: unsupported aggregation stage %s", query.ErrInvalidQuery, op)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func stageMatch(docs []*document.Document, spec any) ([]*document.Document, error) {
	filter, ok := spec.(*document.Document)
	if !ok {
		return nil, fmt.Errorf("%w: $match requires a document", query.ErrInvalidQuery)
	}
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		matched, err := query.Match(d, filter)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, d)
		}
	}
	return out, nil
}

func stageProject(docs []*document.Document, spec any) ([]*document.Document, error) {
	fields, ok := spec.(*document.Document)
	if !ok {
		return nil, fmt.Errorf("%w: $project requires a document", query.ErrInvalidQuery)
	}
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		cur := document.New()
		for _, k := range fields.Keys() {
			v, _ := fields.Get(k)
			switch t := v.(type) {
			case int64:
				if t == 1 {
					copyField(cur, d, k)
				}
			case float64:
				if t == 1 {
					copyField(cur, d, k)
				}
			case bool:
				if t {
					copyField(cur, d, k)
				}
			case *document.Document:
				if lit, ok := t.Get("$literal"); ok {
					cur.Set(k, document.Clone(lit))
					break
				}
				if parts, ok := t.Get("$concat"); ok {
					list, ok := parts.([]any)
					if !ok {
						return nil, fmt.Errorf("%w: $concat requires an array", query.ErrInvalidQuery)
					}
					cur.Set(k, concat(d, list))
				}
			}
		}
		out = append(out, cur)
	}
	return out, nil
}

func copyField(dst, src *document.Document, path string) {
	val, ok := document.Get(src, path)
	if !ok {
		return
	}
	if strings.Contains(path, ".") {
		document.Set(dst, path, document.Clone(val))
	} else {
		dst.Set(path, document.Clone(val))
	}
}

// concat joins field references (strings prefixed with $) and literals
// into one string. Missing fields render as the empty string.
func concat(d *document.Document, parts []any) string {
	var sb strings.Builder
	for _, p := range parts {
		if s, ok := p.(string); ok && strings.HasPrefix(s, "$") {
			val, ok := document.Get(d, s[1:])
			if ok {
				sb.WriteString(stringify(val))
			}
			continue
		}
		sb.WriteString(stringify(p))
	}
	return sb.String()
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		return document.Canonical(v)
	}
}

// SortDocs orders docs by the given keys, applied as repeated stable
// sorts from the least-significant key to the most-significant so the
// first key ends up primary. Shared with the cursor.
func SortDocs(docs []*document.Document, keys []string, directions []int) {
	for i := len(keys) - 1; i >= 0; i-- {
		key, desc := keys[i], directions[i] < 0
		sort.SliceStable(docs, func(a, b int) bool {
			av, _ := document.Get(docs[a], key)
			bv, _ := document.Get(docs[b], key)
			if desc {
				return document.Compare(av, bv) > 0
			}
			return document.Compare(av, bv) < 0
		})
	}
}

func stageSort(docs []*document.Document, spec any) ([]*document.Document, error) {
	sortSpec, ok := spec.(*document.Document)
	if !ok {
		return nil, fmt.Errorf("%w: $sort requires a document", query.ErrInvalidQuery)
	}
	keys := sortSpec.Keys()
	directions := make([]int, len(keys))
	for i, k := range keys {
		v, _ := sortSpec.Get(k)
		dir, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: $sort direction for %s must be 1 or -1", query.ErrInvalidQuery, k)
		}
		directions[i] = int(dir)
	}

	out := make([]*document.Document, len(docs))
	copy(out, docs)
	SortDocs(out, keys, directions)
	return out, nil
}

func stageSkip(docs []*document.Document, spec any) ([]*document.Document, error) {
	n, ok := asInt(spec)
	if !ok {
		return nil, fmt.Errorf("%w: $skip requires an integer", query.ErrInvalidQuery)
	}
	if n <= 0 {
		return docs, nil
	}
	if int(n) >= len(docs) {
		return nil, nil
	}
	return docs[n:], nil
}

func stageLimit(docs []*document.Document, spec any) ([]*document.Document, error) {
	n, ok := asInt(spec)
	if !ok {
		return nil, fmt.Errorf("%w: $limit requires an integer", query.ErrInvalidQuery)
	}
	if n <= 0 || int(n) >= len(docs) {
		return docs, nil
	}
	return docs[:n], nil
}

func stageUnwind(docs []*document.Document, spec any) ([]*document.Document, error) {
	var path string
	switch t := spec.(type) {
	case string:
		path = t
	case *document.Document:
		p, ok := t.Get("path")
		if !ok {
			return nil, fmt.Errorf("%w: $unwind requires a path", query.ErrInvalidQuery)
		}
		s, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $unwind path must be a string", query.ErrInvalidQuery)
		}
		path = s
	default:
		return nil, fmt.Errorf("%w: $unwind requires a path", query.ErrInvalidQuery)
	}
	path = strings.TrimPrefix(path, "$")

	var out []*document.Document
	for _, d := range docs {
		v, ok := document.Get(d, path)
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		for _, item := range arr {
			nd := document.CloneDocument(d)
			document.Set(nd, path, document.Clone(item))
			out = append(out, nd)
		}
	}
	return out, nil
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
