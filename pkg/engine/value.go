package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a scalar of the modeling language: a number or a string.
type Value struct {
	num   float64
	str   string
	isStr bool
}

// Num returns a numeric value.
func Num(f float64) Value { return Value{num: f} }

// Str returns a string value.
func Str(s string) Value { return Value{str: s, isStr: true} }

// ValueOf converts a Go scalar to a Value.
// Integers and floats become numbers; strings stay strings.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case float64:
		return Num(val), nil
	case float32:
		return Num(float64(val)), nil
	case int:
		return Num(float64(val)), nil
	case int32:
		return Num(float64(val)), nil
	case int64:
		return Num(float64(val)), nil
	case uint:
		return Num(float64(val)), nil
	case uint32:
		return Num(float64(val)), nil
	case uint64:
		return Num(float64(val)), nil
	case string:
		return Str(val), nil
	case []byte:
		return Str(string(val)), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %T to a value", v)
	}
}

// IsString reports whether v holds a string.
func (v Value) IsString() bool { return v.isStr }

// Float returns the numeric content. Strings yield NaN.
func (v Value) Float() float64 {
	if v.isStr {
		return math.NaN()
	}
	return v.num
}

// Text returns the string content, or the formatted number.
func (v Value) Text() string {
	if v.isStr {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// Any returns the value as float64 or string.
func (v Value) Any() any {
	if v.isStr {
		return v.str
	}
	return v.num
}

func (v Value) String() string {
	if v.isStr {
		return strconv.Quote(v.str)
	}
	return v.Text()
}

// Equal reports whether two values are identical. Numbers compare by bits
// so NaN equals NaN and 0 differs from -0.
func (v Value) Equal(o Value) bool {
	if v.isStr != o.isStr {
		return false
	}
	if v.isStr {
		return v.str == o.str
	}
	return math.Float64bits(v.num) == math.Float64bits(o.num)
}

// MarshalJSON encodes numbers as JSON numbers and strings as JSON strings.
// Non-finite numbers, which JSON cannot represent, are encoded as
// {"num": "Infinity"} style objects that UnmarshalJSON reverses.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isStr {
		return json.Marshal(v.str)
	}
	switch {
	case math.IsInf(v.num, 1):
		return json.Marshal(map[string]string{"num": "Infinity"})
	case math.IsInf(v.num, -1):
		return json.Marshal(map[string]string{"num": "-Infinity"})
	case math.IsNaN(v.num):
		return json.Marshal(map[string]string{"num": "NaN"})
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*v = Str(str)
		return nil
	case strings.HasPrefix(s, "{"):
		var special struct {
			Num string `json:"num"`
		}
		if err := json.Unmarshal(b, &special); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(special.Num, 64)
		if err != nil {
			return fmt.Errorf("invalid special number %q", special.Num)
		}
		*v = Num(f)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*v = Num(f)
		return nil
	}
}

// Tuple is an index into an indexed entity, or a set member.
type Tuple []Value

// TupleOf builds a tuple from Go scalars.
func TupleOf(items ...any) (Tuple, error) {
	t := make(Tuple, len(items))
	for i, item := range items {
		v, err := ValueOf(item)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
		t[i] = v
	}
	return t, nil
}

// Equal reports whether both tuples hold identical values.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Key returns a string usable as a map key for the tuple.
func (t Tuple) Key() string {
	var b strings.Builder
	for i, v := range t {
		if i > 0 {
			b.WriteByte(0)
		}
		if v.isStr {
			b.WriteByte('s')
			b.WriteString(v.str)
		} else {
			b.WriteByte('n')
			b.WriteString(strconv.FormatUint(math.Float64bits(v.num), 16))
		}
	}
	return b.String()
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
