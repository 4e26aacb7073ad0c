// Package cli provides the command-line interface for leapmp.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/cli/commands"
	"github.com/leapstack-labs/leapmp/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapmp",
		Short: "leapmp - drive an algebraic modeling interpreter from Go",
		Long: `leapmp runs model files, statements and scripts against an algebraic
modeling language interpreter, moves data between the interpreter and SQL
databases, and serves a session over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
			if cfg.ConfigFile != "" {
				logger.Debug("using config file", "path", cfg.ConfigFile)
			}

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (commit %s, built %s)\n", GitCommit, BuildDate))

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: leapmp.yaml, searched upward)")
	rootCmd.PersistentFlags().String("engine", "", "Engine type (e.g. bridge)")
	rootCmd.PersistentFlags().String("engine-path", "", "Path to the interpreter bridge executable")
	rootCmd.PersistentFlags().String("dir", "", "Interpreter working directory")
	rootCmd.PersistentFlags().String("state", "", "Path to the state database")
	rootCmd.PersistentFlags().String("addr", "", "Listen address for serve")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json|csv|yaml)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputModes, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewEvalCommand())
	rootCmd.AddCommand(commands.NewOptionCommand())
	rootCmd.AddCommand(commands.NewEntitiesCommand())
	rootCmd.AddCommand(commands.NewDataCommand())
	rootCmd.AddCommand(commands.NewREPLCommand())
	rootCmd.AddCommand(commands.NewScriptCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapmp.

To load completions:

Bash:
  $ source <(leapmp completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapmp completion bash > /etc/bash_completion.d/leapmp
  # macOS:
  $ leapmp completion bash > $(brew --prefix)/etc/bash_completion.d/leapmp

Zsh:
  $ leapmp completion zsh > "${fpath[1]}/_leapmp"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ leapmp completion fish > ~/.config/fish/completions/leapmp.fish

PowerShell:
  PS> leapmp completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
