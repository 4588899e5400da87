// Package listing holds the canonical query-parameter object shared by the
// filter normalizer, the sort bridge and the query controller.
package listing

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
)

// Reserved pagination and sort keys.
const (
	KeyOffset    = "offset"
	KeyLimit     = "limit"
	KeySort      = "sort"
	KeyDirection = "direction"
)

// ReservedKeys are never considered when deciding whether a search is blank.
var ReservedKeys = []string{KeyOffset, KeyLimit, KeySort, KeyDirection}

// Params is a flat, query-ready parameter object. Values are scalars, slices or
// nested maps (date ranges). A Params value handed to another component must be
// treated as immutable; use Merge to derive a new one.
type Params map[string]any

// Clone returns a deep copy of p. A nil Params clones to an empty one.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a new Params holding p overlaid with diff. Neither input is
// modified.
func (p Params) Merge(diff Params) Params {
	out := p.Clone()
	for k, v := range diff {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of p without the given keys.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Keys returns the keys of p in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int reads an integer value, accepting any numeric representation.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Equal reports whether a and b describe the same query. Comparison is
// structural: map ordering and numeric representation do not matter, and a
// nil Params equals an empty one.
func Equal(a, b Params) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

// IsBlank reports whether every value of p, ignoring the reserved keys and
// exclude, is falsy.
func IsBlank(p Params, exclude ...string) bool {
	skip := make(map[string]struct{}, len(ReservedKeys)+len(exclude))
	for _, k := range ReservedKeys {
		skip[k] = struct{}{}
	}
	for _, k := range exclude {
		skip[k] = struct{}{}
	}
	for k, v := range p {
		if _, ok := skip[k]; ok {
			continue
		}
		if !Falsy(v) {
			return false
		}
	}
	return true
}

// Falsy reports whether v carries no restriction: nil, zero scalars and empty
// collections.
func Falsy(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	}
	return false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string{}, t...)
	case []int:
		return append([]int{}, t...)
	case map[string]int64:
		out := make(map[string]int64, len(t))
		for k, n := range t {
			out[k] = n
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, n := range t {
			out[k] = cloneValue(n)
		}
		return out
	case Params:
		return t.Clone()
	}
	return v
}
