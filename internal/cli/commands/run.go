package commands

import (
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Solve   bool
	Display []string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Read model and data files, optionally solve",
		Long: `Read model and data files into a fresh session in the order given.

Files ending in .dat are read in data mode; everything else is read as a
model or script file. With --solve the model is solved after all files are
read, and each --display expression is shown afterwards.`,
		Example: `  # Read a model and its data, then solve
  leapmp run diet.mod diet.dat --solve

  # Solve and show the results
  leapmp run diet.mod diet.dat --solve --display Buy --display Total_Cost`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Solve, "solve", false, "Solve after reading all files")
	cmd.Flags().StringArrayVarP(&opts.Display, "display", "d", nil, "Expression to display afterwards (repeatable)")

	return cmd
}

func runRun(cmd *cobra.Command, files []string, opts *RunOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := cc.loadFiles(cmd, files); err != nil {
		return err
	}
	if opts.Solve {
		if err := cc.Session.Solve(ctx); err != nil {
			return err
		}
	}
	if len(opts.Display) > 0 {
		return cc.Session.Display(ctx, opts.Display...)
	}
	return nil
}
