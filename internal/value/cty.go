package value

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// ToCty converts v into a cty value. Maps become objects and lists become
// tuples so that heterogeneous content survives the conversion.
func ToCty(v Value) cty.Value {
	switch v.kind {
	case KindBool:
		return cty.BoolVal(v.b)
	case KindNumber:
		return cty.NumberFloatVal(v.n)
	case KindText:
		return cty.StringVal(v.s)
	case KindList:
		if len(v.l) == 0 {
			return cty.EmptyTupleVal
		}
		items := make([]cty.Value, len(v.l))
		for i, item := range v.l {
			items[i] = ToCty(item)
		}
		return cty.TupleVal(items)
	case KindMap:
		return MapToCty(v.m)
	default:
		return cty.NullVal(cty.DynamicPseudoType)
	}
}

// MapToCty converts m into a cty object.
func MapToCty(m Map) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, item := range m {
		attrs[k] = ToCty(item)
	}
	return cty.ObjectVal(attrs)
}

// FromCty converts a cty value back into a Value. Unknown values are
// treated as null.
func FromCty(val cty.Value) (Value, error) {
	val, _ = val.UnmarkDeep()
	if val.IsNull() || !val.IsKnown() {
		return Null(), nil
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return Text(val.AsString()), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return Number(f), nil
	case ty == cty.Bool:
		return Bool(val.True()), nil
	case ty.IsObjectType() || ty.IsMapType():
		m := make(Map, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			item, err := FromCty(ev)
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", k.AsString(), err)
			}
			m[k.AsString()] = item
		}
		return FromMap(m), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		items := make([]Value, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			item, err := FromCty(ev)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", len(items), err)
			}
			items = append(items, item)
		}
		return List(items...), nil
	default:
		return Null(), fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
	}
}

// MapFromCty converts a cty object or map into a Map.
func MapFromCty(val cty.Value) (Map, error) {
	v, err := FromCty(val)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return Map{}, nil
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", v.Kind())
	}
	return m, nil
}
