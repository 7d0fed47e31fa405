package mongolite

import (
	"errors"
	"testing"

	"github.com/mongolite/mongolite/internal/query"
	"github.com/mongolite/mongolite/pkg/document"
)

func findAll(t *testing.T, coll *Collection, filter string, opts FindOptions) []*document.Document {
	t.Helper()
	cur, err := coll.Find(mustParse(t, filter), opts)
	if err != nil {
		t.Fatalf("Find(%s) failed: %v", filter, err)
	}
	docs, err := cur.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	return docs
}

func TestSortSkipLimit(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"n": 3}`, `{"n": 1}`, `{"n": 5}`, `{"n": 2}`, `{"n": 4}`)

	docs := findAll(t, coll, `{}`, FindOptions{
		Sort:  []SortKey{{Field: "n", Direction: 1}},
		Skip:  1,
		Limit: 3,
	})

	want := []int64{2, 3, 4}
	if len(docs) != len(want) {
		t.Fatalf("Expected %d documents, got %d", len(want), len(docs))
	}
	for i, w := range want {
		if v, _ := docs[i].Get("n"); v != w {
			t.Errorf("Expected n = %d at %d, got %v", w, i, v)
		}
	}
}

func TestSortDescending(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"n": 1}`, `{"n": 3}`, `{"n": 2}`)

	docs := findAll(t, coll, `{}`, FindOptions{Sort: []SortKey{{Field: "n", Direction: -1}}})
	if v, _ := docs[0].Get("n"); v != int64(3) {
		t.Errorf("Expected 3 first, got %v", v)
	}
}

func TestSkipPastEnd(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"n": 1}`)

	docs := findAll(t, coll, `{}`, FindOptions{Skip: 5})
	if len(docs) != 0 {
		t.Errorf("Expected no documents, got %d", len(docs))
	}
}

func TestCountAfterSkipLimit(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"n": 1}`, `{"n": 2}`, `{"n": 3}`, `{"n": 4}`)

	cur, err := coll.Find(mustParse(t, `{}`), FindOptions{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	n, err := cur.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2, got %d", n)
	}
}

func TestCursorIsRestartable(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"n": 1}`, `{"n": 2}`)

	cur, err := coll.Find(mustParse(t, `{}`), FindOptions{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	first, err := cur.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	second, err := cur.All()
	if err != nil {
		t.Fatalf("Second All failed: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Errorf("Expected both iterations to yield 2 documents, got %d and %d", len(first), len(second))
	}
}

func TestProjectionInclusionKeepsID(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"_id": "a", "name": "ada", "age": 36}`)

	docs := findAll(t, coll, `{}`, FindOptions{Projection: mustParse(t, `{"name": 1}`)})
	d := docs[0]
	if v, _ := d.Get("_id"); v != "a" {
		t.Errorf("Expected _id to survive inclusion, got %v", v)
	}
	if !d.Has("name") {
		t.Error("Expected name to be included")
	}
	if d.Has("age") {
		t.Error("Expected age to be dropped")
	}
}

func TestProjectionExcludeID(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"_id": "a", "name": "ada"}`)

	docs := findAll(t, coll, `{}`, FindOptions{Projection: mustParse(t, `{"name": 1, "_id": 0}`)})
	if docs[0].Has("_id") {
		t.Error("Expected _id to be excluded")
	}
	if !docs[0].Has("name") {
		t.Error("Expected name to be included")
	}
}

func TestProjectionExclusionMode(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"_id": "a", "name": "ada", "secret": "x"}`)

	docs := findAll(t, coll, `{}`, FindOptions{Projection: mustParse(t, `{"secret": 0}`)})
	d := docs[0]
	if d.Has("secret") {
		t.Error("Expected secret to be excluded")
	}
	if !d.Has("_id") || !d.Has("name") {
		t.Error("Expected the remaining fields to survive")
	}
}

func TestProjectionMixedIsRejected(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"a": 1, "b": 2}`)

	cur, err := coll.Find(mustParse(t, `{}`), FindOptions{Projection: mustParse(t, `{"a": 1, "b": 0}`)})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	_, err = cur.All()
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}

func TestProjectionDottedPath(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"_id": "a", "addr": {"city": "paris", "zip": "75001"}, "name": "ada"}`)

	docs := findAll(t, coll, `{}`, FindOptions{Projection: mustParse(t, `{"addr.city": 1}`)})
	d := docs[0]
	if v, _ := document.Get(d, "addr.city"); v != "paris" {
		t.Errorf("Expected addr.city, got %v", v)
	}
	if _, ok := document.Get(d, "addr.zip"); ok {
		t.Error("Expected addr.zip to be dropped")
	}
	if d.Has("name") {
		t.Error("Expected name to be dropped")
	}
}

func TestExcludedFieldNoLongerExists(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"_id": "a", "name": "ada", "secret": "x"}`)

	docs := findAll(t, coll, `{}`, FindOptions{Projection: mustParse(t, `{"name": 1}`)})

	// A projected-away field is invisible to a follow-up match.
	matched, err := query.Match(docs[0], mustParse(t, `{"secret": {"$exists": true}}`))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if matched {
		t.Error("Expected the projected document not to expose secret")
	}
}

func TestCursorResultsAreCopies(t *testing.T) {
	coll := testCollection(t)
	seed(t, coll, `{"_id": "a", "n": 1}`)

	cur, err := coll.Find(mustParse(t, `{}`), FindOptions{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	docs, err := cur.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	docs[0].Set("n", int64(99))

	again, err := cur.All()
	if err != nil {
		t.Fatalf("Second All failed: %v", err)
	}
	if v, _ := again[0].Get("n"); v != int64(1) {
		t.Errorf("Expected the cursor snapshot to be unaffected, got %v", v)
	}
}
