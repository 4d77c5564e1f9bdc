// Package fields models the loosely typed field values of upstream tabular records.
//
// Upstream tables do not publish a static schema, so every cell is decoded into a
// small tagged union (Value) and rows are kept as insertion-ordered maps (Map).
package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	// KindNull is a JSON null or a missing value
	KindNull Kind = iota
	// KindString is a JSON string
	KindString
	// KindNumber is a JSON number
	KindNumber
	// KindBool is a JSON boolean
	KindBool
	// KindRaw is a JSON array or object kept verbatim (attachments, multi-selects, linked records)
	KindRaw
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single upstream cell value
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	// literal holds the original JSON text for numbers and raw values
	literal string
}

// Null returns the null value
func Null() Value {
	return Value{kind: KindNull}
}

// String returns a string value
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a number value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool returns a boolean value
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Raw returns a value wrapping a JSON array or object.
// Invalid JSON degrades to null so documents stay well formed.
func Raw(data []byte) Value {
	if !gjson.ValidBytes(data) {
		return Null()
	}
	return FromResult(gjson.ParseBytes(data))
}

// FromResult converts a parsed gjson result into a Value
func FromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		return Value{kind: KindNumber, num: r.Num, literal: r.Raw}
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.JSON:
		return Value{kind: KindRaw, literal: r.Raw}
	default:
		return Null()
	}
}

// Kind returns the variant held by v
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is null
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsString returns the string held by v
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number held by v
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean held by v
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Float interprets v as a finite float64.
// Numbers are returned directly; strings are parsed after trimming whitespace.
func (v Value) Float() (float64, bool) {
	var f float64
	switch v.kind {
	case KindNumber:
		f = v.num
	case KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Equal reports whether two values hold the same variant and content
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindRaw:
		return v.literal == other.literal
	default:
		return true
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if v.literal != "" {
			return []byte(v.literal), nil
		}
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("unsupported number value: %v", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindRaw:
		return []byte(v.literal), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON value: %q", string(data))
	}
	*v = FromResult(gjson.ParseBytes(data))
	return nil
}

// Interface returns v as a plain Go value (string, float64, bool, nil, or decoded JSON)
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindRaw:
		return gjson.Parse(v.literal).Value()
	default:
		return nil
	}
}
