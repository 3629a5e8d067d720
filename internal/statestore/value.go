package statestore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which member of the Value union is set.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindString
	KindBool
	KindInt
	KindFloat
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "invalid"
	}
}

// Bool renderings. Rooms historically report booleans capitalised.
const (
	trueString  = "True"
	falseString = "False"
)

// Value is a state value: a string, bool, integer or float.
//
// The canonical string form is computed once, at construction. The zero Value
// is invalid and is rejected by Update.
type Value struct {
	kind Kind
	text string
}

// String creates a string Value. The canonical form is s itself.
func String(s string) Value {
	return Value{kind: KindString, text: s}
}

// Bool creates a boolean Value. The canonical form is "True" or "False".
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, text: trueString}
	}
	return Value{kind: KindBool, text: falseString}
}

// Int creates an integer Value in base 10.
func Int(i int64) Value {
	return Value{kind: KindInt, text: strconv.FormatInt(i, 10)}
}

// Float creates a float Value using the shortest decimal that round-trips.
// Integral floats have no fractional part: Float(60) is "60".
func Float(f float64) Value {
	return Value{kind: KindFloat, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// float32Value formats at 32-bit precision so float32(0.1) stays "0.1".
func float32Value(f float32) Value {
	return Value{kind: KindFloat, text: strconv.FormatFloat(float64(f), 'f', -1, 32)}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

// String returns the canonical string form stored in the table.
func (v Value) String() string {
	return v.text
}

// ValueOf converts a Go scalar into a Value.
//
// Supported: string, bool, all signed and unsigned integer widths, float32,
// float64, json.Number and fmt.Stringer. A nil input returns the zero Value
// and no error, so callers can pass it straight to Update and get a rejection.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Value{kind: KindInt, text: strconv.FormatUint(uint64(x), 10)}, nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Value{kind: KindInt, text: strconv.FormatUint(x, 10)}, nil
	case float32:
		return float32Value(x), nil
	case float64:
		return Float(x), nil
	case json.Number:
		return numberValue(x), nil
	case fmt.Stringer:
		return String(x.String()), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// numberValue keeps integer literals as integers and normalises the rest
// through Float, so "60" and "60.0" both store as "60".
func numberValue(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	if f, err := n.Float64(); err == nil {
		return Float(f)
	}
	return String(n.String())
}
