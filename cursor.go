package mongolite

import (
	"fmt"

	"github.com/mongolite/mongolite/internal/pipeline"
	"github.com/mongolite/mongolite/pkg/document"
)

// SortKey orders results by one dotted path; Direction is 1 for
// ascending, -1 for descending.
type SortKey struct {
	Field     string
	Direction int
}

// FindOptions configures post-processing of a matched result set.
// Projection is a document of path to 1/0 (or true/false): all-inclusion
// or all-exclusion, never mixed (excluding _id alongside inclusions is
// allowed). Zero Skip/Limit mean no truncation.
type FindOptions struct {
	Projection *document.Document
	Sort       []SortKey
	Skip       int
	Limit      int
}

// Cursor holds a matched result set and applies sort, skip, limit and
// projection on demand. It can be re-iterated; every call works from
// the same held snapshot.
type Cursor struct {
	docs []*document.Document
	opts FindOptions
}

func newCursor(docs []*document.Document, opts FindOptions) *Cursor {
	return &Cursor{docs: docs, opts: opts}
}

// All materializes the post-processed result set. Returned documents
// are copies; mutating them does not affect the cursor.
func (c *Cursor) All() ([]*document.Document, error) {
	docs := make([]*document.Document, len(c.docs))
	copy(docs, c.docs)

	if len(c.opts.Sort) > 0 {
		keys := make([]string, len(c.opts.Sort))
		dirs := make([]int, len(c.opts.Sort))
		for i, s := range c.opts.Sort {
			keys[i], dirs[i] = s.Field, s.Direction
		}
		pipeline.SortDocs(docs, keys, dirs)
	}

	if c.opts.Skip > 0 {
		if c.opts.Skip >= len(docs) {
			docs = nil
		} else {
			docs = docs[c.opts.Skip:]
		}
	}
	if c.opts.Limit > 0 && len(docs) > c.opts.Limit {
		docs = docs[:c.opts.Limit]
	}

	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		p, err := project(d, c.opts.Projection)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Count reports the length of the post-processed result set, after
// skip and limit.
func (c *Cursor) Count() (int, error) {
	docs, err := c.All()
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// project applies a projection document to one document. Inclusion mode
// copies the listed paths and keeps _id unless it is explicitly
// excluded; exclusion mode removes the listed paths from a copy.
func project(d *document.Document, projection *document.Document) (*document.Document, error) {
	if projection == nil || projection.Len() == 0 {
		return document.CloneDocument(d), nil
	}

	var include, exclude []string
	excludeID := false
	for _, k := range projection.Keys() {
		v, _ := projection.Get(k)
		if truthy(v) {
			include = append(include, k)
		} else if k == "_id" {
			excludeID = true
		} else {
			exclude = append(exclude, k)
		}
	}
	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("%w: projection cannot mix inclusion and exclusion", ErrInvalidQuery)
	}

	if len(include) > 0 {
		out := document.New()
		if !excludeID {
			if id, ok := d.Get("_id"); ok {
				out.Set("_id", document.Clone(id))
			}
		}
		for _, k := range include {
			val, ok := document.Get(d, k)
			if !ok {
				continue
			}
			document.Set(out, k, document.Clone(val))
		}
		return out, nil
	}

	out := document.CloneDocument(d)
	for _, k := range exclude {
		document.Unset(out, k)
	}
	if excludeID {
		out.Remove("_id")
	}
	return out, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return false
}
