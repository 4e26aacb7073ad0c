// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/config"
	"github.com/leapstack-labs/leapmp/internal/testutil"
	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/engine/enginetest"
)

// MemoryEngine is the engine type registered by RegisterMemoryEngine.
const MemoryEngine = "memory"

var registerOnce sync.Once

// RegisterMemoryEngine registers the in-memory test engine as "memory".
func RegisterMemoryEngine() {
	registerOnce.Do(func() {
		engine.Register(MemoryEngine, func(*slog.Logger) engine.Engine { return enginetest.New() })
	})
}

// Project files written by SetupTestProject.
const (
	ModelFile = "diet.mod"
	DataFile  = "diet.dat"
	CostsFile = "costs.csv"
)

const projectConfig = `engine:
  type: memory
  dir: .
state_path: .leapmp/state.db
options:
  presolve: 0
datasources:
  warehouse:
    type: sqlite
    path: warehouse.db
`

const dietModel = `# diet problem
set FOOD;
param cost {FOOD};
param budget := 10;
var Buy {FOOD} >= 0;
minimize Total_Cost: sum {j in FOOD} cost[j] * Buy[j];
subject to Limit: sum {j in FOOD} Buy[j] <= budget;
`

const dietData = `set FOOD := bread milk;
param cost := bread 2 milk 3;
`

const costsCSV = `food,cost
bread,4
milk,5
`

// SetupTestProject creates a temporary project with a leapmp.yaml using
// the memory engine, a model, its data and a CSV of costs.
func SetupTestProject(t *testing.T) string {
	t.Helper()
	RegisterMemoryEngine()

	dir := t.TempDir()
	files := map[string]string{
		"leapmp.yaml": projectConfig,
		ModelFile:     dietModel,
		DataFile:      dietData,
		CostsFile:     costsCSV,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	return dir
}

// Result holds the captured output of a command.
type Result struct {
	Out    string
	ErrOut string
}

// ExecuteCommand runs cmd with args against the project in dir, the way
// the root command would after loading its configuration.
func ExecuteCommand(t *testing.T, dir string, cmd *cobra.Command, args ...string) (Result, error) {
	t.Helper()
	return ExecuteCommandWithInput(t, dir, "", cmd, args...)
}

// ExecuteCommandWithInput is ExecuteCommand with input on stdin.
func ExecuteCommandWithInput(t *testing.T, dir, input string, cmd *cobra.Command, args ...string) (Result, error) {
	t.Helper()

	cfg, err := config.Load(filepath.Join(dir, "leapmp.yaml"), nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLogger(t))

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(bytes.NewBufferString(input))
	if args == nil {
		// cobra falls back to os.Args for nil.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err = cmd.ExecuteContext(ctx)
	return Result{Out: out.String(), ErrOut: errOut.String()}, err
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
