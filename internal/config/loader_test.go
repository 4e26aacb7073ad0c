package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "leapmp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("engine", "", "")
	fs.String("engine-path", "", "")
	fs.String("state", "", "")
	fs.String("output", "", "")
	fs.Bool("verbose", false, "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultEngine, cfg.Engine.Type)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.True(t, filepath.IsAbs(cfg.StatePath))
	assert.Equal(t, filepath.Base(DefaultStateFile), filepath.Base(cfg.StatePath))
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadFindsConfigUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
engine:
  type: bridge
  path: bin/ampl-bridge
  dir: models
output: json
options:
  solver: highs
datasources:
  warehouse:
    type: sqlite
    path: data/wh.db
  scratch:
    type: duckdb
    path: ":memory:"
server:
  watch: [models/diet.mod]
`)
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	wantRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(cfg.ProjectRoot)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, gotRoot)

	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "bin", "ampl-bridge"), cfg.Engine.Path)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "models"), cfg.Engine.Dir)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, ".leapmp", "state.db"), cfg.StatePath)
	assert.Equal(t, "highs", cfg.Options["solver"])
	assert.Equal(t, []string{filepath.Join(cfg.ProjectRoot, "models", "diet.mod")}, cfg.Server.Watch)

	wh, err := cfg.Datasource("warehouse")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "data", "wh.db"), wh.Path)
	scratch, err := cfg.Datasource("scratch")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", scratch.Path)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "output: json\nengine:\n  path: ampl\n")

	t.Setenv("LEAPMP_OUTPUT", "csv")
	t.Setenv("LEAPMP_ENGINE__PATH", "ampl-env")

	cfg, err := Load("", testFlags())
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output, "env overrides file")
	assert.Equal(t, "ampl-env", cfg.Engine.Path)

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--output=yaml", "--engine-path=ampl-flag", "--state=run/state.db"}))
	cfg, err = Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Output, "flag overrides env")
	assert.Equal(t, "ampl-flag", cfg.Engine.Path)
	assert.True(t, filepath.IsAbs(cfg.StatePath))
	assert.Equal(t, "state.db", filepath.Base(cfg.StatePath))
}

func TestLoadIgnoresUnchangedFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "output: markdown\n")

	cfg, err := Load("", testFlags())
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Output)
}

func TestLoadExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	other := t.TempDir()
	path := writeConfig(t, other, "engine:\n  type: enginetest\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "enginetest", cfg.Engine.Type)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, other, cfg.ProjectRoot)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("WH_USER", "analyst")
	t.Setenv("WH_PASS", "s3cret")
	t.Setenv("AMPL_HOME", "/opt/ampl")
	writeConfig(t, dir, `
engine:
  env:
    AMPL_LICENSE: ${AMPL_HOME}/ampl.lic
    UNSET: ${LEAPMP_TEST_UNSET_VAR}
datasources:
  wh:
    type: postgres
    user: ${WH_USER}
    password: ${WH_PASS}
`)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/ampl/ampl.lic", cfg.Engine.Env["AMPL_LICENSE"])
	assert.Equal(t, "${LEAPMP_TEST_UNSET_VAR}", cfg.Engine.Env["UNSET"])
	assert.Equal(t, "analyst", cfg.Datasources["wh"].User)
	assert.Equal(t, "s3cret", cfg.Datasources["wh"].Password)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad output", "output: html\n", "invalid output"},
		{"datasource without type", "datasources:\n  wh:\n    path: x.db\n", "datasource wh: type is required"},
		{"empty engine", "engine:\n  type: \"\"\n", "engine.type is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			writeConfig(t, dir, tt.content)

			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "engine: [unterminated\n")

	_, err := Load("", nil)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestDatasourceNotConfigured(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Datasource("wh")
	assert.ErrorContains(t, err, `datasource "wh" is not configured`)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LEAPMP_X", "1")
	assert.Equal(t, "a1b", expandEnvVars("a${LEAPMP_X}b"))
	assert.Equal(t, "no vars", expandEnvVars("no vars"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "engine.path", envKey("LEAPMP_ENGINE__PATH"))
	assert.Equal(t, "state_path", envKey("LEAPMP_STATE_PATH"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.NotNil(t, GetLogger(ctx))

	cfg := &Config{Output: "json"}
	ctx = WithConfig(ctx, cfg)
	assert.Same(t, cfg, FromContext(ctx))

	var buf bytes.Buffer
	ctx = WithLogger(ctx, NewLogger(&buf, false))
	GetLogger(ctx).Info("hidden")
	GetLogger(ctx).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
