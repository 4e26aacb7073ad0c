package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/internal/cli/testutil"
)

func project(t *testing.T) (dir, model, data string) {
	t.Helper()
	dir = testutil.SetupTestProject(t)
	return dir, filepath.Join(dir, testutil.ModelFile), filepath.Join(dir, testutil.DataFile)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunReadsAndSolves(t *testing.T) {
	dir, model, data := project(t)

	res, err := testutil.ExecuteCommand(t, dir, NewRunCommand(), model, data, "--solve", "--display", "budget")
	require.NoError(t, err)
	assert.Equal(t, "solved\nbudget = 10\n", res.Out)
}

func TestRunReportsEngineErrors(t *testing.T) {
	dir, model, _ := project(t)
	bad := writeFile(t, dir, "bad.mod", "frobnicate x;\n")

	_, err := testutil.ExecuteCommand(t, dir, NewRunCommand(), model, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.mod")
	assert.Contains(t, err.Error(), "syntax error")
}

func TestRunRequiresFiles(t *testing.T) {
	dir, _, _ := project(t)
	_, err := testutil.ExecuteCommand(t, dir, NewRunCommand())
	assert.Error(t, err)
}

func TestEval(t *testing.T) {
	dir, model, _ := project(t)

	t.Run("arguments", func(t *testing.T) {
		res, err := testutil.ExecuteCommand(t, dir, NewEvalCommand(), "-m", model, "param p := 3;", "display p, budget;")
		require.NoError(t, err)
		assert.Equal(t, "p = 3\nbudget = 10\n", res.Out)
	})

	t.Run("stdin", func(t *testing.T) {
		res, err := testutil.ExecuteCommandWithInput(t, dir, "param q := 7;\ndisplay q;\n", NewEvalCommand())
		require.NoError(t, err)
		assert.Equal(t, "q = 7\n", res.Out)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := testutil.ExecuteCommandWithInput(t, dir, "  \n", NewEvalCommand())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no statements")
	})
}

func TestOptionGetSet(t *testing.T) {
	dir, _, _ := project(t)

	t.Run("configured option", func(t *testing.T) {
		res, err := testutil.ExecuteCommand(t, dir, NewOptionCommand(), "get", "presolve")
		require.NoError(t, err)
		assert.Equal(t, "- **presolve:** 0\n", res.Out)
	})

	t.Run("set reads back", func(t *testing.T) {
		res, err := testutil.ExecuteCommand(t, dir, NewOptionCommand(), "set", "solver", "highs")
		require.NoError(t, err)
		assert.Equal(t, "- **solver:** highs\n", res.Out)
	})

	t.Run("json", func(t *testing.T) {
		t.Setenv("LEAPMP_OUTPUT", "json")
		res, err := testutil.ExecuteCommand(t, dir, NewOptionCommand(), "set", "tol", "1e-6")
		require.NoError(t, err)

		var got []OptionOutput
		require.NoError(t, json.Unmarshal([]byte(res.Out), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "tol", got[0].Name)
		assert.Equal(t, "float", got[0].Type)
		assert.InDelta(t, 1e-6, got[0].Value, 1e-12)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := testutil.ExecuteCommand(t, dir, NewOptionCommand(), "get", "nosuch")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not defined")
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := testutil.ExecuteCommand(t, dir, NewOptionCommand(), "set", "bad name", "1")
		assert.Error(t, err)
	})
}

func TestEntities(t *testing.T) {
	dir, model, _ := project(t)
	t.Setenv("LEAPMP_OUTPUT", "json")

	res, err := testutil.ExecuteCommand(t, dir, NewEntitiesCommand(), "-m", model)
	require.NoError(t, err)

	var got []map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Out), &got))
	assert.Equal(t, []map[string]string{
		{"kind": "variable", "name": "Buy"},
		{"kind": "constraint", "name": "Limit"},
		{"kind": "objective", "name": "Total_Cost"},
		{"kind": "set", "name": "FOOD"},
		{"kind": "parameter", "name": "cost"},
		{"kind": "parameter", "name": "budget"},
	}, got)

	res, err = testutil.ExecuteCommand(t, dir, NewEntitiesCommand(), "variables", "-m", model)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.Out), &got))
	assert.Equal(t, []map[string]string{{"kind": "variable", "name": "Buy"}}, got)

	_, err = testutil.ExecuteCommand(t, dir, NewEntitiesCommand(), "widgets", "-m", model)
	assert.Error(t, err)
}

func TestDataPull(t *testing.T) {
	dir, model, data := project(t)
	t.Setenv("LEAPMP_OUTPUT", "json")

	res, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "pull", "cost", "-m", model, "-m", data)
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Out), &got))
	assert.Equal(t, []map[string]any{
		{"index0": "bread", "cost": 2.0},
		{"index0": "milk", "cost": 3.0},
	}, got)
}

func TestDataPullRequiresTable(t *testing.T) {
	dir, model, _ := project(t)
	_, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "pull", "cost", "-m", model, "--source", "warehouse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--table")
}

func TestDataPushFromCSV(t *testing.T) {
	dir, model, data := project(t)
	costs := filepath.Join(dir, testutil.CostsFile)

	res, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "push", "-m", model, "-m", data, "--file", costs)
	require.NoError(t, err)
	assert.Contains(t, res.ErrOut, "assigned 2 rows to [cost]")

	budget := writeFile(t, dir, "budget.csv", "budget\n20\n")
	res, err = testutil.ExecuteCommand(t, dir, NewDataCommand(), "push", "-m", model, "--file", budget, "--index", "0", "--display", "budget")
	require.NoError(t, err)
	assert.Equal(t, "budget = 20\n", res.Out)
}

func TestDataPushRejectsUndeclaredColumns(t *testing.T) {
	dir, model, _ := project(t)
	f := writeFile(t, dir, "weights.csv", "food,weight\nbread,1\n")

	_, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "push", "-m", model, "--file", f)
	assert.Error(t, err)
}

func TestDataPushNeedsInput(t *testing.T) {
	dir, model, _ := project(t)
	_, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "push", "-m", model)
	assert.Error(t, err)
}

func TestDataRoundTripThroughSource(t *testing.T) {
	dir, model, data := project(t)

	res, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "pull", "cost",
		"-m", model, "-m", data, "--source", "warehouse", "--table", "costs")
	require.NoError(t, err)
	assert.Contains(t, res.ErrOut, "stored 2 rows in warehouse.costs")
	assert.FileExists(t, filepath.Join(dir, "warehouse.db"))

	res, err = testutil.ExecuteCommand(t, dir, NewDataCommand(), "push", "-m", model,
		"--source", "warehouse", "--query", "select sum(cost) as budget from costs", "--index", "0",
		"--display", "budget")
	require.NoError(t, err)
	assert.Equal(t, "budget = 5\n", res.Out)
}

func TestDataUnknownSource(t *testing.T) {
	dir, model, _ := project(t)
	_, err := testutil.ExecuteCommand(t, dir, NewDataCommand(), "push", "-m", model,
		"--source", "lake", "--query", "select 1 as budget", "--index", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestScript(t *testing.T) {
	dir, model, _ := project(t)

	script := writeFile(t, dir, "sweep.star", `
for a in args:
    set_option("solver", a)
    print(option("solver"))
print(value("budget"))
`)
	res, err := testutil.ExecuteCommand(t, dir, NewScriptCommand(), "-m", model, script, "highs", "cbc")
	require.NoError(t, err)
	assert.Equal(t, "highs\ncbc\n10.0\n", res.Out)
}

func TestScriptExpr(t *testing.T) {
	dir, model, _ := project(t)

	res, err := testutil.ExecuteCommand(t, dir, NewScriptCommand(), "-m", model, "-e", `entities("variable")`)
	require.NoError(t, err)
	assert.Equal(t, "[\"Buy\"]\n", res.Out)
}

func TestScriptErrors(t *testing.T) {
	dir, _, _ := project(t)

	_, err := testutil.ExecuteCommand(t, dir, NewScriptCommand())
	require.Error(t, err)

	script := writeFile(t, dir, "boom.star", `fail("boom")`)
	_, err = testutil.ExecuteCommand(t, dir, NewScriptCommand(), script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestHistory(t *testing.T) {
	dir, model, data := project(t)

	_, err := testutil.ExecuteCommand(t, dir, NewHistoryCommand())
	require.Error(t, err, "no state database yet")

	_, err = testutil.ExecuteCommand(t, dir, NewRunCommand(), model, data, "--solve")
	require.NoError(t, err)

	t.Setenv("LEAPMP_OUTPUT", "json")
	res, err := testutil.ExecuteCommand(t, dir, NewHistoryCommand())
	require.NoError(t, err)

	var sessions []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Out), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "memory", sessions[0]["engine"])
	assert.NotEmpty(t, sessions[0]["closed"])
	id := sessions[0]["id"].(string)

	res, err = testutil.ExecuteCommand(t, dir, NewHistoryCommand(), id)
	require.NoError(t, err)

	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Out), &events))
	var ops []string
	for _, ev := range events {
		ops = append(ops, ev["op"].(string))
	}
	assert.Equal(t, []string{"open", "set_option", "read", "read_data", "solve", "close"}, ops)

	_, err = testutil.ExecuteCommand(t, dir, NewHistoryCommand(), "missing")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	dir, _, _ := project(t)
	res, err := testutil.ExecuteCommand(t, dir, NewVersionCommand("1.2.3"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Out, "leapmp v1.2.3\n"))
	assert.Contains(t, res.Out, testutil.MemoryEngine)
}
