package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/datasource"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// DataOptions holds options shared by the data commands.
type DataOptions struct {
	Models  []string
	Source  string
	Table   string
	Query   string
	File    string
	Index   int
	Append  bool
	Solve   bool
	Display []string
}

// NewDataCommand creates the data command group.
func NewDataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Move tabular data between the interpreter and data sources",
		Long: `Move tabular data between the interpreter and configured data sources.

Data sources are declared under datasources in leapmp.yaml and may be
duckdb, postgres or sqlite databases.`,
	}
	cmd.AddCommand(newDataPullCommand(), newDataPushCommand())
	return cmd
}

func newDataPullCommand() *cobra.Command {
	opts := &DataOptions{}
	cmd := &cobra.Command{
		Use:   "pull <expr>...",
		Short: "Read entity values into a table",
		Long: `Evaluate indexed expressions and print them as one table, or store the
table into a data source with --source and --table.`,
		Example: `  # Print solution values
  leapmp data pull Buy Buy.rc -m diet.mod -m diet.dat --solve

  # Store them in a duckdb table
  leapmp data pull Buy -m diet.mod -m diet.dat --solve --source warehouse --table buy`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDataPull(cmd, args, opts)
		},
	}
	addModelFlag(cmd, &opts.Models)
	cmd.Flags().BoolVar(&opts.Solve, "solve", false, "Solve before reading values")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Data source to store the table in")
	cmd.Flags().StringVar(&opts.Table, "table", "", "Destination table (required with --source)")
	cmd.Flags().BoolVar(&opts.Append, "append", false, "Append to the table instead of replacing it")
	return cmd
}

func runDataPull(cmd *cobra.Command, exprs []string, opts *DataOptions) error {
	if opts.Source != "" && opts.Table == "" {
		return fmt.Errorf("--table is required with --source")
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := cc.loadFiles(cmd, opts.Models); err != nil {
		return err
	}
	if opts.Solve {
		if err := cc.Session.Solve(ctx); err != nil {
			return err
		}
	}

	f, err := cc.Session.Data(ctx, exprs...)
	if err != nil {
		return err
	}
	if opts.Source == "" {
		return cc.Renderer.RenderFrame(f)
	}

	src, err := cc.openSource(cmd, opts.Source)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	mode := datasource.Replace
	if opts.Append {
		mode = datasource.Append
	}
	if err := src.StoreFrame(ctx, opts.Table, f, mode); err != nil {
		return err
	}
	cc.Renderer.Notice("stored %d rows in %s.%s", f.NumRows(), opts.Source, opts.Table)
	return nil
}

func newDataPushCommand() *cobra.Command {
	opts := &DataOptions{}
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Assign a table to declared entities",
		Long: `Load a table from a data source query (--source and --query) or a CSV
file (--file) and assign it to the declared entities named by its value
columns. The first --index columns form the index.`,
		Example: `  leapmp data push -m diet.mod --file costs.csv --solve --display Buy
  leapmp data push -m diet.mod --source warehouse --query 'select food, cost from foods' --solve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDataPush(cmd, opts)
		},
	}
	addModelFlag(cmd, &opts.Models)
	cmd.Flags().StringVar(&opts.Source, "source", "", "Data source to query")
	cmd.Flags().StringVar(&opts.Query, "query", "", "Query producing the table")
	cmd.Flags().StringVar(&opts.File, "file", "", "CSV file with a header row")
	cmd.Flags().IntVar(&opts.Index, "index", 1, "Number of leading index columns")
	cmd.Flags().BoolVar(&opts.Solve, "solve", false, "Solve after assigning")
	cmd.Flags().StringArrayVarP(&opts.Display, "display", "d", nil, "Expression to display afterwards (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("file", "source")
	cmd.MarkFlagsOneRequired("file", "source")
	cmd.MarkFlagsRequiredTogether("source", "query")
	return cmd
}

func runDataPush(cmd *cobra.Command, opts *DataOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := cc.loadFiles(cmd, opts.Models); err != nil {
		return err
	}

	var f *frame.Frame
	if opts.File != "" {
		file, err := os.Open(opts.File)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", opts.File, err)
		}
		defer func() { _ = file.Close() }()
		if f, err = frame.ReadCSV(file, opts.Index); err != nil {
			return fmt.Errorf("%s: %w", opts.File, err)
		}
	} else {
		src, err := cc.openSource(cmd, opts.Source)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		if f, err = src.LoadFrame(ctx, opts.Query, opts.Index); err != nil {
			return err
		}
	}

	if err := cc.Session.SetData(ctx, f); err != nil {
		return err
	}
	cc.Renderer.Notice("assigned %d rows to %v", f.NumRows(), f.ValueColumns())

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

func (cc *CommandContext) openSource(cmd *cobra.Command, name string) (*datasource.Source, error) {
	dcfg, err := cc.Cfg.Datasource(name)
	if err != nil {
		return nil, err
	}
	return datasource.Open(cmd.Context(), dcfg, cc.Logger)
}
