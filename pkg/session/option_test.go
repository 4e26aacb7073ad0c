package session

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOptionDispatch(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		setter string
		stored OptionValue
	}{
		{"int", 3, "int", Int(3)},
		{"int64", int64(-4), "int", Int(-4)},
		{"uint8", uint8(7), "int", Int(7)},
		{"uint", uint(5), "int", Int(5)},
		{"uint64", uint64(math.MaxInt64), "int", Int(math.MaxInt64)},
		{"uintptr", uintptr(9), "int", Int(9)},
		{"float", 1.5, "float", Float(1.5)},
		{"float32", float32(0.25), "float", Float(0.25)},
		{"bool true", true, "bool", Int(1)},
		{"bool false", false, "bool", Int(0)},
		{"string", "gurobi", "string", Text("gurobi")},
		{"variant", Text("cplex"), "string", Text("cplex")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, eng := newTestSession(t)

			require.NoError(t, s.SetOptionValue(ctx, "opt", tt.value))
			assert.Equal(t, tt.setter, eng.LastOptionSetter())

			got, ok, err := s.Option(ctx, "opt")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.stored, got)
		})
	}
}

func TestSetOptionUnsupportedType(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)

	for _, v := range []any{nil, []string{"a"}, map[string]int{}, struct{}{}, complex(1, 2)} {
		err := s.SetOptionValue(ctx, "opt", v)
		var typeErr *UnsupportedOptionTypeError
		require.ErrorAs(t, err, &typeErr, "%T", v)
		assert.Equal(t, "opt", typeErr.Name)
	}
	assert.Empty(t, eng.LastOptionSetter())

	err := s.SetOption(ctx, "opt", OptionValue{Type: OptionType(42)})
	var typeErr *UnsupportedOptionTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestSetOptionUnsignedOverflow(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)

	err := s.SetOptionValue(ctx, "opt", uint64(math.MaxInt64)+1)
	var rangeErr *OptionRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "opt", rangeErr.Name)
	assert.Equal(t, "9223372036854775808", rangeErr.Value)
	assert.Empty(t, eng.LastOptionSetter())
}

func TestOptionOfErrorsWithoutName(t *testing.T) {
	_, err := OptionOf([]int{1})
	assert.EqualError(t, err, "unsupported option value type []int")

	_, err = OptionOf(uint64(math.MaxUint64))
	assert.EqualError(t, err, "option value 18446744073709551615 out of integer range")
}

func TestOptionNameValidation(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)

	for _, name := range []string{"", "1abc", "has space", "semi;colon", "solver; reset"} {
		err := s.SetOption(ctx, name, Int(1))
		var nameErr *InvalidOptionNameError
		assert.ErrorAs(t, err, &nameErr, name)

		_, _, err = s.Option(ctx, name)
		assert.ErrorAs(t, err, &nameErr, name)
	}
	assert.Zero(t, eng.Calls("Option"))
	assert.NoError(t, s.SetOption(ctx, "gurobi_options", Text("outlev=1")))
}

func TestParseOption(t *testing.T) {
	tests := []struct {
		stored string
		want   OptionValue
	}{
		{"10", Int(10)},
		{" 10 ", Int(10)},
		{"-3", Int(-3)},
		{"1.5", Float(1.5)},
		{"1e-6", Float(1e-6)},
		{"gurobi", Text("gurobi")},
		{"", Text("")},
		// A text option that looks numeric reads back as a number.
		{"007", Int(7)},
	}
	for _, tt := range tests {
		t.Run(tt.stored, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOption(tt.stored))
		})
	}
}

func TestOptionUnknownReportsAbsent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	_, ok, err := s.Option(ctx, "s_o_l_v_e_r")
	require.NoError(t, err)
	assert.False(t, ok)
}

// A fresh session reports the engine default for presolve; setting it to
// false reads back as 0.
func TestPresolveScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	v, ok, err := s.Option(ctx, "presolve")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Int(10), v)

	require.NoError(t, s.SetOptionValue(ctx, "presolve", false))

	v, ok, err = s.Option(ctx, "presolve")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Int(0), v)
	assert.Equal(t, int64(0), v.Any())
}

func TestOptionValueString(t *testing.T) {
	assert.Equal(t, "1", Bool(true).String())
	assert.Equal(t, "0.5", Float(0.5).String())
	assert.Equal(t, "-2", Int(-2).String())
	assert.Equal(t, "minos", Text("minos").String())
	assert.Equal(t, "bool", OptionBool.String())
}
