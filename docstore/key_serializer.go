package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// keySeparator delimits query key segments.
const keySeparator = "::"

// querySerializer produces deterministic string forms of filter values so
// that Query.Key is stable across runs and across processes. Maps are
// emitted with sorted keys; structs use exported fields only; anything
// else falls back to JSON. Unlike a generic cache key builder there is no
// pointer-formatting path here: query descriptors are plain data, and a
// key that depended on an address would silently break descriptor
// equality between two identical queries.
type querySerializer struct{}

func newQuerySerializer() *querySerializer {
	return &querySerializer{}
}

// serializeKey joins the collection name and pre-rendered segments.
func (s *querySerializer) serializeKey(collection string, segments ...any) string {
	if len(segments) == 0 {
		return collection
	}

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, collection)
	for _, seg := range segments {
		parts = append(parts, fmt.Sprintf("%v", seg))
	}
	return strings.Join(parts, keySeparator)
}

// serializeValue renders a single filter value deterministically.
func (s *querySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeSeq("slice", rv)

	case reflect.Array:
		return s.serializeSeq("array", rv)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)

	case reflect.Struct:
		return s.serializeStruct(rv, rt)

	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	}

	if isBasicKind(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *querySerializer) serializeSeq(label string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", label, length, strings.Join(parts, ","))
}

// serializeMap renders key-value pairs in sorted key order for
// deterministic output.
func (s *querySerializer) serializeMap(rv reflect.Value) string {
	keys := rv.MapKeys()

	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, pair{
			k: s.serializeValue(k.Interface()),
			v: s.serializeValue(rv.MapIndex(k).Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	rendered := make([]string, len(pairs))
	for i, p := range pairs {
		rendered[i] = fmt.Sprintf("%s=%s", p.k, p.v)
	}
	return fmt.Sprintf("map[%d]:{%s}", len(rendered), strings.Join(rendered, ","))
}

func (s *querySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanInterface() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%s", field.Name, s.serializeValue(fv.Interface())))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

// jsonFallback handles values outside the cases above. When marshaling
// fails the key degrades to type information; the query still works, two
// such queries just stop being interchangeable.
func (s *querySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%s", reflect.TypeOf(v).String())
	}
	return fmt.Sprintf("json:%s", string(data))
}
