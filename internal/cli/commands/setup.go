package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/cli/output"
	"github.com/leapstack-labs/leapmp/internal/config"
	"github.com/leapstack-labs/leapmp/internal/state"
	"github.com/leapstack-labs/leapmp/internal/telemetry"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Session  *session.Session
	Metrics  *telemetry.Recorder
}

// NewCommandContext opens a session on the configured engine.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc, err := NewCommandContextWithoutSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()

	journal, err := openJournal(cmd, cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	cc.Metrics = telemetry.NewRecorder()
	scfg := session.Config{
		Engine:      cc.Cfg.Engine.ToEngine(),
		Logger:      cc.Logger,
		Metrics:     cc.Metrics,
		Output:      cmd.OutOrStdout(),
		Diagnostics: cmd.ErrOrStderr(),
		Options:     cc.Cfg.Options,
	}
	if journal != nil {
		scfg.Journal = journal
	}

	sess, err := session.Open(ctx, scfg)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return nil, nil, err
	}
	cc.Session = sess

	cleanup := func() {
		if err := sess.Close(); err != nil {
			cc.Logger.Warn("failed to close session", "error", err)
		}
		if journal != nil {
			_ = journal.Close()
		}
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutSession creates a CommandContext without a session.
// Useful for commands that don't need an engine.
func NewCommandContextWithoutSession(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// openJournal opens the state store, creating its directory.
// An empty state path disables the journal.
func openJournal(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath == "" {
		return nil, nil
	}
	if cfg.StatePath != ":memory:" {
		if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}
	store := state.NewSQLiteStore(cfg.Engine.Type, logger)
	if err := store.Open(cmd.Context(), cfg.StatePath); err != nil {
		return nil, err
	}
	return store, nil
}

// absPaths resolves paths against the process working directory, which
// may differ from the engine's.
func absPaths(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out[i] = abs
	}
	return out, nil
}

// isDataFile reports whether path holds data statements rather than a model.
func isDataFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dat")
}

// loadFiles reads model and data files into the session in order.
func (cc *CommandContext) loadFiles(cmd *cobra.Command, files []string) error {
	paths, err := absPaths(files)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	for _, p := range paths {
		if isDataFile(p) {
			cc.Logger.Debug("reading data", "path", p)
			err = cc.Session.ReadData(ctx, p)
		} else {
			cc.Logger.Debug("reading model", "path", p)
			err = cc.Session.Read(ctx, p)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// addModelFlag registers the repeatable --model flag.
func addModelFlag(cmd *cobra.Command, files *[]string) {
	cmd.Flags().StringArrayVarP(files, "model", "m", nil, "Model or data file to read first (repeatable)")
}
