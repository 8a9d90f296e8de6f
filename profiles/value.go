package profiles

import (
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// Kind enumerates the parameter value types a profile may carry.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
	KindColor
	KindArray
	KindHash
)

func (k Kind) String() string {
	return [...]string{"int", "float", "bool", "string", "color", "array", "hash"}[k]
}

// ParseKind maps the `type` field of a profile/manifest entry.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "bool":
		return KindBool, nil
	case "string":
		return KindString, nil
	case "color":
		return KindColor, nil
	case "array":
		return KindArray, nil
	case "hash":
		return KindHash, nil
	}
	return 0, errors.Errorf("profiles: unknown value type %q", s)
}

// Value is one typed script parameter.
type Value struct {
	Kind Kind
	raw  interface{}
}

func IntValue(v int64) Value     { return Value{Kind: KindInt, raw: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, raw: v} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, raw: v} }
func StringValue(v string) Value { return Value{Kind: KindString, raw: v} }
func ArrayValue(v []Value) Value { return Value{Kind: KindArray, raw: v} }
func ColorValue(v canvas.RGBA) Value {
	return Value{Kind: KindColor, raw: v}
}
func HashValue(v map[string]Value) Value {
	return Value{Kind: KindHash, raw: v}
}

func (v Value) Int() int64         { i, _ := v.raw.(int64); return i }
func (v Value) Float() float64     { f, _ := v.raw.(float64); return f }
func (v Value) Bool() bool         { b, _ := v.raw.(bool); return b }
func (v Value) String() string     { s, _ := v.raw.(string); return s }
func (v Value) Color() canvas.RGBA { c, _ := v.raw.(canvas.RGBA); return c }
func (v Value) Array() []Value     { a, _ := v.raw.([]Value); return a }
func (v Value) Hash() map[string]Value {
	h, _ := v.raw.(map[string]Value)
	return h
}

// Export converts the value to the plain Go representation handed to
// the script engine's global namespace.
func (v Value) Export() interface{} {
	switch v.Kind {
	case KindColor:
		return int64(v.Color().Packed())
	case KindArray:
		arr := v.Array()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = e.Export()
		}
		return out
	case KindHash:
		h := v.Hash()
		out := make(map[string]interface{}, len(h))
		for k, e := range h {
			out[k] = e.Export()
		}
		return out
	default:
		return v.raw
	}
}

// decodeValue converts a raw TOML value to a typed Value for the given
// kind. Colors are stored packed as a single integer.
func decodeValue(kind Kind, raw interface{}) (Value, error) {
	switch kind {
	case KindInt:
		switch n := raw.(type) {
		case int64:
			return IntValue(n), nil
		case float64:
			return IntValue(int64(n)), nil
		}
	case KindFloat:
		switch n := raw.(type) {
		case float64:
			return FloatValue(n), nil
		case int64:
			return FloatValue(float64(n)), nil
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return BoolValue(b), nil
		}
	case KindString:
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
	case KindColor:
		switch n := raw.(type) {
		case int64:
			return ColorValue(canvas.FromPacked(uint32(n))), nil
		case float64:
			return ColorValue(canvas.FromPacked(uint32(n))), nil
		}
	case KindArray:
		if arr, ok := raw.([]interface{}); ok {
			out := make([]Value, 0, len(arr))
			for _, e := range arr {
				v, err := decodeAny(e)
				if err != nil {
					return Value{}, err
				}
				out = append(out, v)
			}
			return ArrayValue(out), nil
		}
	case KindHash:
		if m, ok := raw.(map[string]interface{}); ok {
			out := make(map[string]Value, len(m))
			for k, e := range m {
				v, err := decodeAny(e)
				if err != nil {
					return Value{}, err
				}
				out[k] = v
			}
			return HashValue(out), nil
		}
	}
	return Value{}, errors.Errorf("profiles: value %v (%T) does not match declared type %s", raw, raw, kind)
}

// decodeAny infers the kind from the raw TOML type; used inside arrays
// and hashes where entries carry no declared type.
func decodeAny(raw interface{}) (Value, error) {
	switch n := raw.(type) {
	case int64:
		return IntValue(n), nil
	case float64:
		return FloatValue(n), nil
	case bool:
		return BoolValue(n), nil
	case string:
		return StringValue(n), nil
	case []interface{}:
		return decodeValue(KindArray, raw)
	case map[string]interface{}:
		return decodeValue(KindHash, raw)
	default:
		return Value{}, errors.Errorf("profiles: unsupported nested value %v (%T)", raw, n)
	}
}

// encodeValue converts a typed Value back to its TOML representation.
func encodeValue(v Value) interface{} {
	switch v.Kind {
	case KindColor:
		return int64(v.Color().Packed())
	case KindArray:
		arr := v.Array()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = encodeValue(e)
		}
		return out
	case KindHash:
		h := v.Hash()
		out := make(map[string]interface{}, len(h))
		for k, e := range h {
			out[k] = encodeValue(e)
		}
		return out
	default:
		return v.raw
	}
}
