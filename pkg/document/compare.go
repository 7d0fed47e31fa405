package document

// Type ranks used for the total sort order. Missing values are ranked
// together with explicit nulls so sorting a mixed result set never fails.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankArray
	rankDocument
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int64, float64:
		return rankNumber
	case string:
		return rankString
	case []any:
		return rankArray
	case *Document:
		return rankDocument
	default:
		return rankNull
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// Equal reports structural equality between two values. Numbers compare
// by numeric value regardless of integer or floating representation;
// documents compare by key set and field values, not key order.
func Equal(a, b any) bool {
	if an, ok := asFloat(a); ok {
		bn, ok := asFloat(b)
		return ok && an == bn
	}
	switch at := a.(type) {
	case nil:
		return b == nil
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case *Document:
		bt, ok := b.(*Document)
		if !ok || at.Len() != bt.Len() {
			return false
		}
		for _, k := range at.keys {
			bv, ok := bt.Get(k)
			if !ok || !Equal(at.fields[k], bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare imposes a total order over values for sorting: values of
// different kinds order by type rank, values of the same kind order by
// their natural order. Returns -1, 0 or 1.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNull:
		return 0
	case rankBool:
		av, bv := a.(bool), b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case rankNumber:
		av, _ := asFloat(a)
		bv, _ := asFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case rankString:
		av, bv := a.(string), b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case rankArray:
		av, bv := a.([]any), b.([]any)
		n := len(av)
		if len(bv) < n {
			n = len(bv)
		}
		for i := 0; i < n; i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		}
		return 0
	case rankDocument:
		av, bv := a.(*Document), b.(*Document)
		n := av.Len()
		if bv.Len() < n {
			n = bv.Len()
		}
		for i := 0; i < n; i++ {
			ak, bk := av.keys[i], bv.keys[i]
			switch {
			case ak < bk:
				return -1
			case ak > bk:
				return 1
			}
			if c := Compare(av.fields[ak], bv.fields[bk]); c != 0 {
				return c
			}
		}
		switch {
		case av.Len() < bv.Len():
			return -1
		case av.Len() > bv.Len():
			return 1
		}
		return 0
	}
	return 0
}

// CompareOrdered compares two values of the same kind for range
// operators. The second return is false when the values are not mutually
// orderable (different kinds, or a kind with no natural order).
func CompareOrdered(a, b any) (int, bool) {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return 0, false
	}
	switch ra {
	case rankNumber, rankString, rankBool:
		return Compare(a, b), true
	}
	return 0, false
}
