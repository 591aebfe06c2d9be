package value

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseJSON decodes one JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Null(), fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return Null(), fmt.Errorf("invalid json: trailing data after document")
	}
	return FromInterface(raw)
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(v.Interface())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	parsed, err := fromMsgpack(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// fromMsgpack handles the map[any]any shape msgpack produces for maps whose
// keys were not encoded as strings.
func fromMsgpack(raw any) (Value, error) {
	switch t := raw.(type) {
	case map[any]any:
		m := make(Map, len(t))
		for k, item := range t {
			key, ok := k.(string)
			if !ok {
				return Null(), fmt.Errorf("unsupported map key type %T", k)
			}
			v, err := fromMsgpack(item)
			if err != nil {
				return Null(), err
			}
			m[key] = v
		}
		return FromMap(m), nil
	case map[string]any:
		m := make(Map, len(t))
		for k, item := range t {
			v, err := fromMsgpack(item)
			if err != nil {
				return Null(), err
			}
			m[k] = v
		}
		return FromMap(m), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromMsgpack(item)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return List(items...), nil
	default:
		return FromInterface(raw)
	}
}

// Decode fills the struct pointed to by out from m, using the struct's json
// tags.
func (m Map) Decode(out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
