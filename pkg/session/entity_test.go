package session

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

func TestVariableAccessors(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindVariable, "buy", 1)

	buy, err := s.Variable(ctx, "buy")
	require.NoError(t, err)
	beef := engine.Str("BEEF")

	lb, ub, err := buy.Bounds(ctx, beef)
	require.NoError(t, err)
	assert.True(t, math.IsInf(lb, -1))
	assert.True(t, math.IsInf(ub, 1))

	require.NoError(t, buy.SetBounds(ctx, 2, 10, beef))
	lb, ub, err = buy.Bounds(ctx, beef)
	require.NoError(t, err)
	assert.Equal(t, 2.0, lb)
	assert.Equal(t, 10.0, ub)
	assert.Error(t, buy.SetBounds(ctx, 5, 1, beef))

	require.NoError(t, buy.SetValue(ctx, 4.5, beef))
	v, err := buy.Value(ctx, beef)
	require.NoError(t, err)
	assert.Equal(t, 4.5, v)

	require.NoError(t, buy.Fix(ctx, 3, beef))
	fixed, err := buy.get(ctx, "fixed", []engine.Value{beef})
	require.NoError(t, err)
	assert.Equal(t, 1.0, fixed.Float())
	require.NoError(t, buy.Unfix(ctx, beef))

	rc, err := buy.ReducedCost(ctx, beef)
	require.NoError(t, err)
	assert.Zero(t, rc)

	// Wrong number of subscripts is reported by the engine.
	_, err = buy.Value(ctx)
	assert.Error(t, err)
}

func TestEntityDoesNotCacheValues(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindVariable, "x", 0)

	x, err := s.Variable(ctx, "x")
	require.NoError(t, err)

	before := eng.Calls("Attribute")
	require.NoError(t, eng.Put("x", "val", nil, engine.Num(1)))
	v, err := x.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	require.NoError(t, eng.Put("x", "val", nil, engine.Num(2)))
	v, err = x.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, before+2, eng.Calls("Attribute"))
}

func TestStaleReference(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindVariable, "x", 0)

	x, err := s.Variable(ctx, "x")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	_, err = x.Value(ctx)
	var stale *StaleReferenceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "x", stale.Name)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	// Redeclaring yields a new entity; the old reference stays stale.
	require.NoError(t, s.Eval(ctx, "var x;"))
	assert.ErrorAs(t, x.SetValue(ctx, 1), &stale)

	fresh, err := s.Variable(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, fresh.SetValue(ctx, 1))
}

func TestConstraintAndObjective(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	require.NoError(t, s.Eval(ctx, "maximize profit: 3*x; subject to cap: x <= 4;"))
	require.NoError(t, eng.Put("profit", "val", nil, engine.Num(12)))
	require.NoError(t, eng.Put("cap", "body", nil, engine.Num(4)))
	require.NoError(t, eng.Put("cap", "dual", nil, engine.Num(3)))

	obj, err := s.Objective(ctx, "profit")
	require.NoError(t, err)
	sense, err := obj.Sense(ctx)
	require.NoError(t, err)
	assert.Equal(t, "maximize", sense)
	v, err := obj.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)

	c, err := s.Constraint(ctx, "cap")
	require.NoError(t, err)
	body, err := c.Body(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, body)
	dual, err := c.Dual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, dual)
}

func TestSetMembership(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindSet, "ARCS", 0)
	require.NoError(t, eng.PutMembers("ARCS", nil,
		engine.Tuple{engine.Str("SEA"), engine.Str("NYC")},
		engine.Tuple{engine.Str("SEA"), engine.Str("CHI")},
	))

	arcs, err := s.Set(ctx, "ARCS")
	require.NoError(t, err)

	n, err := arcs.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := arcs.Contains(ctx, engine.Tuple{engine.Str("SEA"), engine.Str("CHI")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = arcs.Contains(ctx, engine.Tuple{engine.Str("CHI"), engine.Str("SEA")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParameterValues(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindParameter, "label", 0)

	p, err := s.Parameter(ctx, "label")
	require.NoError(t, err)

	require.NoError(t, p.SetValue(ctx, "hello"))
	v, err := p.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Str("hello"), v)

	require.NoError(t, p.SetValue(ctx, 42))
	v, err = p.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.Float())

	assert.Error(t, p.SetValue(ctx, true))
}

// Pulling an entity's data and pushing it back unchanged leaves every
// value bit-identical.
func TestDataRoundTripIsIdentity(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindParameter, "cost", 2)

	values := []float64{0.1, 1.0 / 3.0, -0.0, math.Inf(1), math.SmallestNonzeroFloat64, math.MaxFloat64}
	for i, v := range values {
		idx := engine.Tuple{engine.Str("r"), engine.Num(float64(i))}
		require.NoError(t, eng.Put("cost", "val", idx, engine.Num(v)))
	}

	p, err := s.Parameter(ctx, "cost")
	require.NoError(t, err)
	f, err := p.Data(ctx)
	require.NoError(t, err)
	require.Equal(t, len(values), f.NumRows())

	require.NoError(t, s.SetData(ctx, f))

	after, err := s.Data(ctx, "cost")
	require.NoError(t, err)
	require.Equal(t, f.NumRows(), after.NumRows())
	for i, row := range after.Rows() {
		assert.True(t, row.Index.Equal(f.Rows()[i].Index))
		assert.Equal(t, math.Float64bits(values[i]), math.Float64bits(row.Values[0].Float()), "row %d", i)
	}
}

func TestSetDataUnknownColumn(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindParameter, "cost", 1)

	f, err := frame.New([]string{"food"}, "cost", "ghost")
	require.NoError(t, err)
	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("BEEF")}, engine.Num(1), engine.Num(2)))

	err = s.SetData(ctx, f)
	var unknown *frame.UnknownColumnError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
	assert.Zero(t, eng.Calls("Assign"))
}

func TestSetDataNilFrame(t *testing.T) {
	s, eng := newTestSession(t)

	assert.ErrorIs(t, s.SetData(context.Background(), nil), ErrNilFrame)
	assert.Zero(t, eng.Calls("Assign"))
}

func TestSetDataWithSuffixColumn(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindVariable, "x", 1)

	f, err := frame.New([]string{"i"}, "x.ub")
	require.NoError(t, err)
	require.NoError(t, f.AddRow(engine.Tuple{engine.Num(1)}, engine.Num(8)))
	require.NoError(t, s.SetData(ctx, f))

	x, err := s.Variable(ctx, "x")
	require.NoError(t, err)
	_, ub, err := x.Bounds(ctx, engine.Num(1))
	require.NoError(t, err)
	assert.Equal(t, 8.0, ub)
}

func TestDataRequiresCommonIndexing(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindParameter, "a", 1)
	eng.Declare(engine.KindParameter, "b", 2)

	_, err := s.Data(ctx, "a", "b")
	assert.Error(t, err)

	_, err = s.Data(ctx)
	assert.Error(t, err)
}
