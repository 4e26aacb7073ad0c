package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileNames are the config file names searched for, in order.
var ConfigFileNames = []string{"leapmp.yaml", "leapmp.yml"}

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: LEAPMP_ENGINE__PATH sets engine.path.
const EnvPrefix = "LEAPMP_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps flag names whose config key differs from the
// kebab-to-snake conversion.
var flagKeys = map[string]string{
	"engine":      "engine.type",
	"engine-path": "engine.path",
	"dir":         "engine.dir",
	"state":       "state_path",
	"addr":        "server.addr",
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range ConfigFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindConfigUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func FindConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if p := configExistsIn(dir); p != "" {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Load loads configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// An empty cfgFile searches upward from the working directory. Only flags
// that were explicitly set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if cfgFile == "" {
		cfgFile = FindConfigUpward(cwd)
	}
	projectRoot := cwd
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Paths given as flags are relative to the working directory, not
	// the project root.
	flagPaths := map[string]bool{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			flagPaths[key] = true
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot
	cfg.ConfigFile = cfgFile

	resolve := func(key, path string) string {
		if flagPaths[key] {
			return resolvePathRelativeTo(path, cwd)
		}
		return resolvePathRelativeTo(path, projectRoot)
	}
	if cfg.StatePath != ":memory:" {
		cfg.StatePath = resolve("state_path", cfg.StatePath)
	}
	cfg.Engine.Dir = resolve("engine.dir", cfg.Engine.Dir)
	if strings.ContainsRune(cfg.Engine.Path, filepath.Separator) {
		cfg.Engine.Path = resolve("engine.path", cfg.Engine.Path)
	}
	for i, w := range cfg.Server.Watch {
		cfg.Server.Watch[i] = resolvePathRelativeTo(w, projectRoot)
	}

	expandEnv(&cfg)
	for name, ds := range cfg.Datasources {
		if ds.Path != "" && ds.Path != ":memory:" {
			ds.Path = resolvePathRelativeTo(ds.Path, projectRoot)
		}
		cfg.Datasources[name] = ds
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey transforms LEAPMP_ENGINE__PATH into engine.path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandEnv expands variables in engine environment values and
// datasource credentials.
func expandEnv(cfg *Config) {
	for k, v := range cfg.Engine.Env {
		cfg.Engine.Env[k] = expandEnvVars(v)
	}
	cfg.Engine.Path = expandEnvVars(cfg.Engine.Path)
	for name, ds := range cfg.Datasources {
		ds.Host = expandEnvVars(ds.Host)
		ds.User = expandEnvVars(ds.User)
		ds.Password = expandEnvVars(ds.Password)
		ds.Database = expandEnvVars(ds.Database)
		ds.Path = expandEnvVars(ds.Path)
		cfg.Datasources[name] = ds
	}
}
