package starlark

import (
	"fmt"
	"maps"
	"slices"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, engine.Value,
// []string, []any, map[string]any. Map keys are inserted in sorted order.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case engine.Value:
		return ValueToStarlark(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val)
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported type: %s", v.Type())
	}
}

// ValueToStarlark converts an interpreter value: strings stay strings,
// numbers become floats.
func ValueToStarlark(v engine.Value) starlark.Value {
	if v.IsString() {
		return starlark.String(v.Text())
	}
	return starlark.Float(v.Float())
}

// ValueFromStarlark converts a string, int or float to an interpreter value.
func ValueFromStarlark(v starlark.Value) (engine.Value, error) {
	switch val := v.(type) {
	case starlark.String:
		return engine.Str(string(val)), nil
	case starlark.Int, starlark.Float:
		f, ok := starlark.AsFloat(val)
		if !ok {
			return engine.Value{}, fmt.Errorf("cannot convert %s to a number", val)
		}
		return engine.Num(f), nil
	default:
		return engine.Value{}, fmt.Errorf("got %s, want string, int or float", v.Type())
	}
}

// tupleFromStarlark converts index arguments to an index tuple.
func tupleFromStarlark(args starlark.Tuple) (engine.Tuple, error) {
	if len(args) == 0 {
		return nil, nil
	}
	t := make(engine.Tuple, len(args))
	for i, a := range args {
		v, err := ValueFromStarlark(a)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		t[i] = v
	}
	return t, nil
}

// FrameToStarlark converts a frame to a list of dicts, one per row, with
// keys in column order.
func FrameToStarlark(f *frame.Frame) starlark.Value {
	cols := f.Columns()
	rows := f.Rows()
	list := make([]starlark.Value, len(rows))
	for i, r := range rows {
		dict := starlark.NewDict(len(cols))
		cells := append(append([]engine.Value(nil), r.Index...), r.Values...)
		for j, c := range cols {
			_ = dict.SetKey(starlark.String(c), ValueToStarlark(cells[j]))
		}
		list[i] = dict
	}
	return starlark.NewList(list)
}
