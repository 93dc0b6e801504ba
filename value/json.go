package value

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cos-systems/cos/errors"
)

// ToJSON converts a Value to its transport-native JSON representation per the
// mapping in spec §4.3: Nil->null, Boolean->bool, Integer->exact number,
// Float->number, String->string, Keyword->string with the leading colon
// stripped, Vector/List->array, Map->object (String/Keyword keys used
// verbatim, Integer keys stringified), everything else stringified.
func ToJSON(v Value) (any, error) {
	switch v.Tag() {
	case TagNil:
		return nil, nil
	case TagBoolean:
		return v.AsBool(), nil
	case TagInteger:
		return v.AsInt(), nil
	case TagFloat:
		return v.AsFloat(), nil
	case TagString:
		return v.AsString(), nil
	case TagKeyword:
		return v.AsString(), nil
	case TagSymbol:
		return v.AsString(), nil
	case TagVector:
		return sliceToJSON(v.AsVector())
	case TagList:
		return sliceToJSON(v.AsList())
	case TagMap:
		out := make(map[string]any, v.MapLen())
		for _, k := range v.MapKeys() {
			val, _ := v.MapGet(k)
			jv, err := ToJSON(val)
			if err != nil {
				return nil, err
			}
			out[mapKeyToString(k)] = jv
		}
		return out, nil
	default:
		return v.String(), nil
	}
}

func sliceToJSON(items []Value) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		jv, err := ToJSON(item)
		if err != nil {
			return nil, err
		}
		out[i] = jv
	}
	return out, nil
}

func mapKeyToString(k MapKey) string {
	if k.Tag == TagInteger {
		return strconv.FormatInt(k.I, 10)
	}
	return k.S
}

// FromJSON converts a decoded JSON value (as produced by encoding/json, i.e.
// nil, bool, float64, string, []any, map[string]any) or by ToJSON (which
// yields int64 for Integer) into a Value. Object keys become String map keys;
// numbers that round-trip exactly as integers are kept as Integer, otherwise
// Float.
func FromJSON(j any) (Value, error) {
	switch x := j.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(x), nil
	case string:
		return Str(x), nil
	case int64:
		return Int(x), nil
	case float64:
		if i := int64(x); float64(i) == x {
			return Int(i), nil
		}
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, errors.Wrap(errors.SchemaError, "invalid JSON number", err)
		}
		return Float(f), nil
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			v, err := FromJSON(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Vector(items...), nil
	case map[string]any:
		m := EmptyMap()
		for k, e := range x {
			v, err := FromJSON(e)
			if err != nil {
				return Value{}, err
			}
			m = m.Set(StringKey(k), v)
		}
		return m, nil
	default:
		return Value{}, errors.Newf(errors.SchemaError, "cannot convert %T to Value", j)
	}
}

// MarshalJSON renders v as JSON text via ToJSON.
func MarshalJSON(v Value) ([]byte, error) {
	j, err := ToJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// UnmarshalJSON parses JSON text into a Value via FromJSON, preserving exact
// integers through json.Number rather than float64's 53-bit mantissa.
func UnmarshalJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var j any
	if err := dec.Decode(&j); err != nil {
		return Value{}, errors.Wrap(errors.SchemaError, "invalid JSON", err)
	}
	return FromJSON(j)
}
