package enginetest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

func TestEvaluateDeclarations(t *testing.T) {
	ctx := context.Background()
	e := New()

	err := e.Evaluate(ctx, `
		set CITIES;
		param n := 3;
		var x{i in CITIES, j in CITIES} >= 0;   # two dimensions
		minimize cost: sum {i in CITIES} x[i,i];
		subject to supply{i in CITIES}: x[i,i] <= 1;
		option solver gurobi;
	`)
	require.NoError(t, err)

	tests := []struct {
		kind  engine.Kind
		name  string
		arity int
	}{
		{engine.KindSet, "CITIES", 0},
		{engine.KindParameter, "n", 0},
		{engine.KindVariable, "x", 2},
		{engine.KindObjective, "cost", 0},
		{engine.KindConstraint, "supply", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := e.LookupEntity(ctx, tt.kind, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.arity, h.IndexArity)
		})
	}

	v, err := e.Value(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Float())

	sense, err := e.Value(ctx, "cost.sense")
	require.NoError(t, err)
	assert.Equal(t, "minimize", sense.Text())

	opt, err := e.Option(ctx, "solver")
	require.NoError(t, err)
	assert.Equal(t, "gurobi", opt)
}

func TestEvaluateSyntaxError(t *testing.T) {
	ctx := context.Background()
	e := New()

	err := e.Evaluate(ctx, "var x; frobnicate;")
	var d *engine.Diagnostic
	require.ErrorAs(t, err, &d)
	assert.Equal(t, engine.SeverityError, d.Severity)
	assert.Equal(t, 2, d.Line)

	// The declaration before the bad statement still happened.
	_, err = e.LookupEntity(ctx, engine.KindVariable, "x")
	assert.NoError(t, err)
}

type collectingHandler struct {
	errors   []*engine.Diagnostic
	warnings []*engine.Diagnostic
}

func (c *collectingHandler) HandleError(d *engine.Diagnostic) error {
	c.errors = append(c.errors, d)
	return nil
}

func (c *collectingHandler) HandleWarning(d *engine.Diagnostic) error {
	c.warnings = append(c.warnings, d)
	return nil
}

func TestErrorHandlerSwallowsDiagnostics(t *testing.T) {
	ctx := context.Background()
	e := New()
	h := &collectingHandler{}
	e.SetErrorHandler(h)

	require.NoError(t, e.Evaluate(ctx, "bogus; var y;"))
	require.Len(t, h.errors, 1)
	assert.Equal(t, 1, h.errors[0].Line)

	_, err := e.LookupEntity(ctx, engine.KindVariable, "y")
	assert.NoError(t, err)
}

func TestReadDataFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "diet.dat"), []byte(`
		set FOOD := BEEF CHK FISH;
		param cost := BEEF 3.19 CHK 2.59 FISH 2.29;
	`), 0o600))

	e := New()
	require.NoError(t, e.Start(ctx, engine.Config{Dir: dir}))
	require.NoError(t, e.Evaluate(ctx, "set FOOD; param cost{FOOD};"))
	require.NoError(t, e.ReadDataFile(ctx, "diet.dat"))

	h, err := e.LookupEntity(ctx, engine.KindSet, "FOOD")
	require.NoError(t, err)
	members, err := e.Members(ctx, h, nil)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	raw, err := e.Query(ctx, []string{"cost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"index0"}, raw.IndexColumns)
	require.Len(t, raw.Rows, 3)
	assert.Equal(t, "CHK", raw.Rows[1][0].Text())
	assert.Equal(t, 2.59, raw.Rows[1][1].Float())
}

func TestReadFileMissing(t *testing.T) {
	e := New()
	err := e.ReadFile(context.Background(), "/does/not/exist.mod")
	var d *engine.Diagnostic
	require.ErrorAs(t, err, &d)
	assert.Contains(t, d.Message, "can't open")
}

func TestRedeclareMakesHandleStale(t *testing.T) {
	ctx := context.Background()
	e := New()
	e.Declare(engine.KindVariable, "x", 0)
	h, err := e.LookupEntity(ctx, engine.KindVariable, "x")
	require.NoError(t, err)

	require.NoError(t, e.Evaluate(ctx, "reset; var x;"))

	_, err = e.Attribute(ctx, h, "val", nil)
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestQueryAndAssign(t *testing.T) {
	ctx := context.Background()
	e := New()
	e.Declare(engine.KindParameter, "p", 1)
	e.Declare(engine.KindVariable, "x", 1)
	for i, v := range []float64{1.5, 2.5} {
		require.NoError(t, e.Put("p", "val", engine.Tuple{engine.Num(float64(i + 1))}, engine.Num(v)))
	}

	raw, err := e.Query(ctx, []string{"p"})
	require.NoError(t, err)
	raw.ValueColumns = []string{"x"}
	require.NoError(t, e.Assign(ctx, raw))

	h, err := e.LookupEntity(ctx, engine.KindVariable, "x")
	require.NoError(t, err)
	v, err := e.Attribute(ctx, h, "val", engine.Tuple{engine.Num(2)})
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.Float())

	_, err = e.Query(ctx, []string{"p", "missing"})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestOptionSetters(t *testing.T) {
	ctx := context.Background()
	e := New()

	require.NoError(t, e.SetBoolOption(ctx, "presolve", false))
	assert.Equal(t, "bool", e.LastOptionSetter())
	v, err := e.Option(ctx, "presolve")
	require.NoError(t, err)
	assert.Equal(t, "0", v)

	_, err = e.Option(ctx, "s_o_l_v_e_r")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDisplayEmitsOutput(t *testing.T) {
	ctx := context.Background()
	e := New()
	var got []string
	e.SetOutputHandler(engine.OutputHandlerFunc(func(kind engine.OutputKind, msg string) {
		if kind == engine.OutputDisplay {
			got = append(got, msg)
		}
	}))

	require.NoError(t, e.Evaluate(ctx, "param n := 4; display n;"))
	assert.Equal(t, []string{"n = 4"}, got)
}
