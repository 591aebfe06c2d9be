// Package value defines the dynamic data type that flows across pins.
//
// A Value is a tagged union of null, boolean, number, text, list and map.
// The zero Value is null. Values are treated as immutable once built: the
// accessors that return lists or maps return the underlying storage and
// callers must not modify it.
package value

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which variant of the union a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one datum passed between nodes.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    Map
}

// Map is a string-keyed collection of values. It is the shape of node
// inputs, node outputs, node configuration and script scopes.
type Map map[string]Value

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// List wraps a sequence of values. The slice is not copied.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

// FromMap wraps a map of values. The map is not copied.
func FromMap(m Map) Value {
	if m == nil {
		m = Map{}
	}
	return Value{kind: KindMap, m: m}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsText returns the text payload and whether v is text.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsList returns the list payload and whether v is a list.
func (v Value) AsList() ([]Value, bool) { return v.l, v.kind == KindList }

// AsMap returns the map payload and whether v is a map.
func (v Value) AsMap() (Map, bool) { return v.m, v.kind == KindMap }

// Interface converts v into plain Go values: nil, bool, float64, string,
// []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindText:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, item := range v.l {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

// String renders v for humans. Text is returned verbatim, numbers in their
// shortest form and containers as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindText:
		return v.s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s: %v>", v.kind, err)
		}
		return string(b)
	}
}

// LogValue implements slog.LogValuer.
func (v Value) LogValue() slog.Value {
	switch v.kind {
	case KindNull:
		return slog.AnyValue(nil)
	case KindBool:
		return slog.BoolValue(v.b)
	case KindNumber:
		return slog.Float64Value(v.n)
	case KindText:
		return slog.StringValue(v.s)
	default:
		return slog.StringValue(v.String())
	}
}

// Equal reports whether a and b hold the same data.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case KindText:
		return a.s == b.s
	case KindList:
		if len(a.l) != len(b.l) {
			return false
		}
		for i := range a.l {
			if !Equal(a.l[i], b.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return a.m.Equal(b.m)
	}
	return false
}

// Get returns the entry for key. A missing key yields null.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// Has reports whether key is present with a non-null value.
func (m Map) Has(key string) bool {
	v, ok := m[key]
	return ok && !v.IsNull()
}

// Clone returns a shallow copy of m. A nil map clones to an empty map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the keys of m in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both maps hold the same entries.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// Interface converts the map into a map[string]any.
func (m Map) Interface() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// FromInterface builds a Value out of plain Go data as produced by
// encoding/json, msgpack or hand-written literals.
func FromInterface(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Map:
		return FromMap(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromInterface(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return List(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Text(item)
		}
		return List(items...), nil
	case map[string]any:
		m := make(Map, len(t))
		for k, item := range t {
			v, err := FromInterface(item)
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = v
		}
		return FromMap(m), nil
	case map[string]string:
		m := make(Map, len(t))
		for k, item := range t {
			m[k] = Text(item)
		}
		return FromMap(m), nil
	default:
		return Null(), fmt.Errorf("unsupported type %T", in)
	}
}

// MustFromInterface is FromInterface for literals known to be convertible.
func MustFromInterface(in any) Value {
	v, err := FromInterface(in)
	if err != nil {
		panic(err)
	}
	return v
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
