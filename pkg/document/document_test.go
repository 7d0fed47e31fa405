package document

import (
	"testing"
)

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	d, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", src, err)
	}
	return d
}

func TestParsePreservesKeyOrder(t *testing.T) {
	d := mustParse(t, `{"b": 1, "a": 2, "c": 3}`)

	keys := d.Keys()
	want := []string{"b", "a", "c"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("Key order mismatch: expected %v, got %v", want, keys)
		}
	}

	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != `{"b":1,"a":2,"c":3}` {
		t.Errorf("Round trip changed document: %s", data)
	}
}

func TestParseNumbers(t *testing.T) {
	d := mustParse(t, `{"i": 42, "f": 1.5, "e": 2e3}`)

	if v, _ := d.Get("i"); v != int64(42) {
		t.Errorf("Expected int64(42), got %T(%v)", v, v)
	}
	if v, _ := d.Get("f"); v != 1.5 {
		t.Errorf("Expected 1.5, got %T(%v)", v, v)
	}
	if v, _ := d.Get("e"); v != 2000.0 {
		t.Errorf("Expected 2000.0, got %T(%v)", v, v)
	}
}

func TestDeepGet(t *testing.T) {
	d := mustParse(t, `{"a": {"b": {"c": 1}}, "s": "x"}`)

	if v, ok := Get(d, "a.b.c"); !ok || v != int64(1) {
		t.Errorf("Expected a.b.c = 1, got %v (present=%v)", v, ok)
	}
	if _, ok := Get(d, "a.b.x"); ok {
		t.Error("Expected a.b.x to be missing")
	}
	// Intermediate segment is not a document.
	if _, ok := Get(d, "s.x"); ok {
		t.Error("Expected s.x to be missing")
	}
	if _, ok := Get(d, "a.b.c.d"); ok {
		t.Error("Expected a.b.c.d to be missing")
	}
}

func TestDeepSetCreatesIntermediates(t *testing.T) {
	d := New()
	Set(d, "a.b.c", 1)

	if v, ok := Get(d, "a.b.c"); !ok || v != int64(1) {
		t.Fatalf("Expected a.b.c = 1, got %v (present=%v)", v, ok)
	}

	// Overwrites a non-document intermediate.
	Set(d, "a.b", "scalar")
	Set(d, "a.b.c", 2)
	if v, _ := Get(d, "a.b.c"); v != int64(2) {
		t.Errorf("Expected a.b.c = 2 after overwrite, got %v", v)
	}
}

func TestDeepUnset(t *testing.T) {
	d := mustParse(t, `{"a": {"b": 1, "c": 2}, "x": 9}`)

	Unset(d, "a.b")
	if _, ok := Get(d, "a.b"); ok {
		t.Error("Expected a.b to be removed")
	}
	if _, ok := Get(d, "a.c"); !ok {
		t.Error("Expected a.c to survive")
	}

	// No-op when an intermediate is not a document.
	Unset(d, "x.y")
	if v, _ := d.Get("x"); v != int64(9) {
		t.Errorf("Unset through a scalar changed it: %v", v)
	}
}

func TestEqualNumeric(t *testing.T) {
	if !Equal(int64(3), 3.0) {
		t.Error("int64(3) and 3.0 should be equal")
	}
	if Equal(int64(3), 3.5) {
		t.Error("int64(3) and 3.5 should differ")
	}
	if Equal(int64(0), nil) {
		t.Error("0 and null should differ")
	}
}

func TestEqualDocumentsIgnoreKeyOrder(t *testing.T) {
	a := mustParse(t, `{"x": 1, "y": [1, {"z": 2}]}`)
	b := mustParse(t, `{"y": [1, {"z": 2}], "x": 1}`)
	if !Equal(a, b) {
		t.Error("Documents with same fields in different order should be equal")
	}

	c := mustParse(t, `{"x": 1, "y": [1, {"z": 3}]}`)
	if Equal(a, c) {
		t.Error("Documents with different nested values should differ")
	}
}

func TestCompareRanksTypes(t *testing.T) {
	ordered := []any{nil, false, true, int64(-1), 2.5, "a", "b", []any{int64(1)}, mustParse(t, `{"a":1}`)}
	for i := 0; i < len(ordered)-1; i++ {
		if Compare(ordered[i], ordered[i+1]) >= 0 {
			t.Errorf("Expected %v < %v", ordered[i], ordered[i+1])
		}
	}
	if Compare(int64(2), 2.0) != 0 {
		t.Error("int64(2) and 2.0 should compare equal")
	}
}

func TestCompareOrderedRejectsMixedKinds(t *testing.T) {
	if _, ok := CompareOrdered(int64(1), "1"); ok {
		t.Error("Number and string should not be mutually orderable")
	}
	if c, ok := CompareOrdered(int64(1), 2.0); !ok || c >= 0 {
		t.Errorf("Expected 1 < 2.0, got c=%d ok=%v", c, ok)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := mustParse(t, `{"a": {"b": [1, 2]}, "n": 1}`)
	clone := CloneDocument(orig)

	Set(clone, "a.b", []any{int64(9)})
	clone.Set("n", 2)

	if v, _ := Get(orig, "a.b"); !Equal(v, []any{int64(1), int64(2)}) {
		t.Errorf("Mutating clone changed original nested array: %v", v)
	}
	if v, _ := orig.Get("n"); v != int64(1) {
		t.Errorf("Mutating clone changed original scalar: %v", v)
	}
}

func TestCanonicalSortsKeys(t *testing.T) {
	a := mustParse(t, `{"b": 1, "a": 2}`)
	b := mustParse(t, `{"a": 2, "b": 1}`)
	if Canonical(a) != Canonical(b) {
		t.Errorf("Canonical forms differ: %s vs %s", Canonical(a), Canonical(b))
	}
}

func TestNormalize(t *testing.T) {
	d := New()
	d.Set("i", 7)
	d.Set("f", float32(1.5))
	d.Set("m", map[string]any{"x": 1})

	if v, _ := d.Get("i"); v != int64(7) {
		t.Errorf("int should normalize to int64, got %T", v)
	}
	if v, _ := d.Get("f"); v != float64(1.5) {
		t.Errorf("float32 should normalize to float64, got %T", v)
	}
	if _, ok := d.fields["m"].(*Document); !ok {
		t.Errorf("map should normalize to *Document, got %T", d.fields["m"])
	}
}

func TestRemoveKeepsOrder(t *testing.T) {
	d := mustParse(t, `{"a": 1, "b": 2, "c": 3}`)
	d.Remove("b")

	keys := d.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("Expected keys [a c], got %v", keys)
	}
}
