package memstore

import (
	"encoding/json"
	"reflect"

	"github.com/goliatone/go-livequery-cache/docstore"
)

func matchesAll(doc map[string]any, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc map[string]any, f docstore.Filter) bool {
	field, ok := doc[f.Field]
	want := normalize(f.Value)

	switch f.Op {
	case docstore.OpEqual:
		return ok && reflect.DeepEqual(field, want)
	case docstore.OpNotEqual:
		return ok && !reflect.DeepEqual(field, want)
	case docstore.OpLess:
		return ok && compareValues(field, want) < 0
	case docstore.OpLessOrEqual:
		return ok && compareValues(field, want) <= 0
	case docstore.OpGreater:
		return ok && compareValues(field, want) > 0
	case docstore.OpGreaterOrEqual:
		return ok && compareValues(field, want) >= 0
	case docstore.OpIn:
		candidates, isSlice := want.([]any)
		if !ok || !isSlice {
			return false
		}
		for _, c := range candidates {
			if reflect.DeepEqual(field, c) {
				return true
			}
		}
		return false
	case docstore.OpArrayContains:
		elements, isSlice := field.([]any)
		if !isSlice {
			return false
		}
		for _, e := range elements {
			if reflect.DeepEqual(e, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// normalize round-trips a filter value through JSON so comparisons see
// the same representation documents decode to (float64 numbers, []any
// slices, map[string]any objects).
func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// compareValues orders two decoded JSON values. Nil/missing sorts before
// everything; mixed types order by type name so sorting stays total.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}

	ab, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool && bBool {
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}

	at := reflect.TypeOf(a).String()
	bt := reflect.TypeOf(b).String()
	switch {
	case at < bt:
		return -1
	case at > bt:
		return 1
	default:
		return 0
	}
}
