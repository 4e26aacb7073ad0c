package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapmp/internal/config"
	"github.com/leapstack-labs/leapmp/internal/datasource"
)

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Description string
	Category    string // "session", "engine", "server", "datasource"
}

// getConfigSchema returns the configuration schema definition.
// Based on internal/config/types.go and internal/datasource.
func getConfigSchema() []ConfigField {
	return []ConfigField{
		{Name: "state_path", Type: "string", Default: config.DefaultStateFile, Description: "Journal database; empty disables the journal", Category: "session"},
		{Name: "output", Type: "string", Default: config.DefaultOutput, Description: "Output format: " + strings.Join(config.OutputModes, ", "), Category: "session"},
		{Name: "verbose", Type: "bool", Default: "false", Description: "Debug logging on stderr", Category: "session"},
		{Name: "options", Type: "map[string]any", Description: "Interpreter options applied when a session starts", Category: "session"},

		{Name: "engine.type", Type: "string", Default: config.DefaultEngine, Description: "Registered engine implementation", Category: "engine"},
		{Name: "engine.path", Type: "string", Description: "Interpreter bridge executable", Category: "engine"},
		{Name: "engine.args", Type: "[]string", Description: "Extra command line arguments", Category: "engine"},
		{Name: "engine.env", Type: "map[string]string", Description: "Extra environment variables", Category: "engine"},
		{Name: "engine.dir", Type: "string", Description: "Interpreter working directory", Category: "engine"},
		{Name: "engine.params", Type: "map[string]any", Description: "Engine-specific settings", Category: "engine"},

		{Name: "server.addr", Type: "string", Default: config.DefaultServerAddr, Description: "Listen address for serve", Category: "server"},
		{Name: "server.watch", Type: "[]string", Description: "Model files re-read after a reset when they change", Category: "server"},

		{Name: "type", Type: "string", Description: "Driver: " + strings.Join(datasource.Types(), ", "), Category: "datasource"},
		{Name: "path", Type: "string", Description: "Database file for duckdb and sqlite", Category: "datasource"},
		{Name: "host", Type: "string", Description: "Database host", Category: "datasource"},
		{Name: "port", Type: "int", Default: "5432", Description: "Database port", Category: "datasource"},
		{Name: "database", Type: "string", Description: "Database name", Category: "datasource"},
		{Name: "user", Type: "string", Description: "Database username", Category: "datasource"},
		{Name: "password", Type: "string", Description: "Database password", Category: "datasource"},
		{Name: "params", Type: "map[string]any", Description: "Driver-specific settings", Category: "datasource"},
	}
}

// generateConfigDocs generates the configuration reference page.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating configuration docs to %s", outDir)

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "leapmp configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("leapmp reads " + InlineCode(config.ConfigFileNames[0]) + " from the working directory or the nearest parent directory. " +
		"Relative paths are resolved against the directory holding the file.")

	sections := []struct {
		category, title, intro string
	}{
		{"session", "Session Settings", ""},
		{"engine", "Engine", "The interpreter each session starts:"},
		{"server", "Server", "Settings for " + InlineCode("leapmp serve") + ":"},
		{"datasource", "Data Sources", "Named SQL databases under the " + InlineCode("datasources") + " key, used by " + InlineCode("leapmp data") + ":"},
	}

	fields := getConfigSchema()
	for _, sec := range sections {
		w.Header(2, sec.title)
		if sec.intro != "" {
			w.Paragraph(sec.intro)
		}
		var rows [][]string
		for _, f := range fields {
			if f.Category != sec.category {
				continue
			}
			def := "-"
			if f.Default != "" {
				def = InlineCode(f.Default)
			}
			rows = append(rows, []string{InlineCode(f.Name), f.Type, def, f.Description})
		}
		w.Table([]string{"Field", "Type", "Default", "Description"}, rows)
	}

	w.Header(2, "Full Configuration Example")
	w.CodeBlock("yaml", `# leapmp.yaml
engine:
  type: bridge
  path: ./bin/ampl-bridge
  env:
    AMPL_LICENSE: ${AMPL_LICENSE}
  dir: models

state_path: .leapmp/state.db
output: auto

options:
  solver: highs
  presolve: 0

server:
  addr: 127.0.0.1:8765
  watch:
    - models/diet.mod
    - models/diet.dat

datasources:
  warehouse:
    type: duckdb
    path: data/warehouse.duckdb
  prod:
    type: postgres
    host: db.example.com
    user: planner
    password: ${PGPASSWORD}
    database: planning`)

	w.Header(2, "Environment Variables")
	w.Paragraph("Use `${VAR_NAME}` in engine settings and data source credentials to read environment variables. " +
		"Any key can also be overridden with a " + InlineCode(config.EnvPrefix) + " variable, e.g. " + InlineCode(config.EnvPrefix+"ENGINE__PATH") + ".")

	return os.WriteFile(filepath.Join(outDir, "configuration.md"), w.Bytes(), 0o600)
}
