// Package config loads leapmp configuration from defaults, leapmp.yaml,
// LEAPMP_ environment variables and command line flags.
package config

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapmp/internal/datasource"
	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// EngineConfig selects and configures the interpreter.
type EngineConfig struct {
	Type   string            `koanf:"type"`
	Path   string            `koanf:"path"`
	Args   []string          `koanf:"args"`
	Env    map[string]string `koanf:"env"`
	Dir    string            `koanf:"dir"`
	Params map[string]any    `koanf:"params"`
}

// ToEngine converts to the engine start configuration.
func (e EngineConfig) ToEngine() engine.Config {
	return engine.Config{
		Type:   e.Type,
		Path:   e.Path,
		Args:   e.Args,
		Env:    e.Env,
		Dir:    e.Dir,
		Params: e.Params,
	}
}

// ServerConfig configures `leapmp serve`.
type ServerConfig struct {
	Addr string `koanf:"addr"`

	// Model files re-read when they change.
	Watch []string `koanf:"watch"`
}

// Config holds all leapmp configuration.
type Config struct {
	Engine    EngineConfig `koanf:"engine"`
	StatePath string       `koanf:"state_path"`
	Output    string       `koanf:"output"`
	Verbose   bool         `koanf:"verbose"`

	// Options applied to every new session.
	Options map[string]any `koanf:"options"`

	Datasources map[string]datasource.Config `koanf:"datasources"`
	Server      ServerConfig                 `koanf:"server"`

	// Set by the loader.
	ProjectRoot string `koanf:"-"`
	ConfigFile  string `koanf:"-"`
}

// OutputModes lists the accepted values of output.
var OutputModes = []string{"auto", "text", "markdown", "json", "csv", "yaml"}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Engine.Type == "" {
		return fmt.Errorf("engine.type is required")
	}
	if !slices.Contains(OutputModes, c.Output) {
		return fmt.Errorf("invalid output %q (want one of %v)", c.Output, OutputModes)
	}
	for name, ds := range c.Datasources {
		if ds.Type == "" {
			return fmt.Errorf("datasource %s: type is required", name)
		}
	}
	return nil
}

// Datasource returns the named data source configuration.
func (c *Config) Datasource(name string) (datasource.Config, error) {
	ds, ok := c.Datasources[name]
	if !ok {
		return datasource.Config{}, fmt.Errorf("datasource %q is not configured\nHint: Add it under datasources in leapmp.yaml", name)
	}
	return ds, nil
}
