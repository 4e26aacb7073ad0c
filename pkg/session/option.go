package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// OptionType tags the variant held by an OptionValue.
type OptionType int

// Option value variants.
const (
	OptionInt OptionType = iota
	OptionFloat
	OptionBool
	OptionText
)

func (t OptionType) String() string {
	switch t {
	case OptionInt:
		return "int"
	case OptionFloat:
		return "float"
	case OptionBool:
		return "bool"
	case OptionText:
		return "text"
	default:
		return fmt.Sprintf("option_type(%d)", int(t))
	}
}

// OptionValue is an interpreter option value: an integer, a float, a
// boolean or text. Only the field matching Type is meaningful.
type OptionValue struct {
	Type  OptionType
	Int   int64
	Float float64
	Bool  bool
	Text  string
}

// Int returns an integer option value.
func Int(v int64) OptionValue { return OptionValue{Type: OptionInt, Int: v} }

// Float returns a floating-point option value.
func Float(v float64) OptionValue { return OptionValue{Type: OptionFloat, Float: v} }

// Bool returns a boolean option value.
func Bool(v bool) OptionValue { return OptionValue{Type: OptionBool, Bool: v} }

// Text returns a string option value.
func Text(v string) OptionValue { return OptionValue{Type: OptionText, Text: v} }

// OptionOf infers the variant from a Go value.
func OptionOf(v any) (OptionValue, error) {
	switch val := v.(type) {
	case OptionValue:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint:
		return uintOption(uint64(val))
	case uint64:
		return uintOption(val)
	case uintptr:
		return uintOption(uint64(val))
	case float32:
		return Float(float64(val)), nil
	case float64:
		return Float(val), nil
	case string:
		return Text(val), nil
	default:
		return OptionValue{}, &UnsupportedOptionTypeError{Type: fmt.Sprintf("%T", v)}
	}
}

func uintOption(u uint64) (OptionValue, error) {
	if u > math.MaxInt64 {
		return OptionValue{}, &OptionRangeError{Value: strconv.FormatUint(u, 10)}
	}
	return Int(int64(u)), nil
}

// Any returns the value as int64, float64, bool or string.
func (v OptionValue) Any() any {
	switch v.Type {
	case OptionInt:
		return v.Int
	case OptionFloat:
		return v.Float
	case OptionBool:
		return v.Bool
	default:
		return v.Text
	}
}

func (v OptionValue) String() string {
	switch v.Type {
	case OptionInt:
		return strconv.FormatInt(v.Int, 10)
	case OptionFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case OptionBool:
		if v.Bool {
			return "1"
		}
		return "0"
	default:
		return v.Text
	}
}

// ParseOption recovers a typed value from an option's stored string form:
// an integer if it parses as one, else a float, else the text unchanged.
// A text option that looks numeric is reported as a number.
func ParseOption(s string) OptionValue {
	trimmed := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Float(f)
	}
	return Text(s)
}

var optionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func validOptionName(name string) error {
	if !optionName.MatchString(name) {
		return &InvalidOptionNameError{Name: name}
	}
	return nil
}

// SetOption sets an interpreter option through the setter matching the
// value's variant.
func (s *Session) SetOption(ctx context.Context, name string, v OptionValue) error {
	if err := validOptionName(name); err != nil {
		return err
	}
	return s.do(ctx, "set_option", name+"="+v.String(), func(ctx context.Context) error {
		switch v.Type {
		case OptionInt:
			return s.eng.SetIntOption(ctx, name, v.Int)
		case OptionFloat:
			return s.eng.SetFloatOption(ctx, name, v.Float)
		case OptionBool:
			return s.eng.SetBoolOption(ctx, name, v.Bool)
		case OptionText:
			return s.eng.SetStringOption(ctx, name, v.Text)
		default:
			return &UnsupportedOptionTypeError{Name: name, Type: v.Type.String()}
		}
	})
}

// SetOptionValue infers the variant of v and sets the option.
func (s *Session) SetOptionValue(ctx context.Context, name string, v any) error {
	ov, err := OptionOf(v)
	if err != nil {
		var typeErr *UnsupportedOptionTypeError
		if errors.As(err, &typeErr) {
			typeErr.Name = name
		}
		var rangeErr *OptionRangeError
		if errors.As(err, &rangeErr) {
			rangeErr.Name = name
		}
		return err
	}
	return s.SetOption(ctx, name, ov)
}

// Option reads an option. ok is false when the interpreter does not know
// the option.
func (s *Session) Option(ctx context.Context, name string) (v OptionValue, ok bool, err error) {
	if err := validOptionName(name); err != nil {
		return OptionValue{}, false, err
	}
	var raw string
	err = s.do(ctx, "option", name, func(ctx context.Context) error {
		var err error
		raw, err = s.eng.Option(ctx, name)
		return err
	})
	if errors.Is(err, engine.ErrNotFound) {
		return OptionValue{}, false, nil
	}
	if err != nil {
		return OptionValue{}, false, err
	}
	return ParseOption(raw), true, nil
}

// applyOptions sets every option in opts, in sorted name order.
func (s *Session) applyOptions(ctx context.Context, opts map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(opts)) {
		if err := s.SetOptionValue(ctx, name, opts[name]); err != nil {
			return fmt.Errorf("default option %s: %w", name, err)
		}
	}
	return nil
}
