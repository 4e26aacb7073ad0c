package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/cli/output"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

// OptionOutput is the JSON output for option commands.
type OptionOutput struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// NewOptionCommand creates the option command group.
func NewOptionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "option",
		Short: "Query and change interpreter options",
	}
	cmd.AddCommand(newOptionGetCommand(), newOptionSetCommand())
	return cmd
}

func newOptionGetCommand() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "get <name>...",
		Short: "Show option values",
		Long: `Show option values as seen by a fresh session, after the configured
options and any --model files have been applied.`,
		Example: `  leapmp option get solver
  leapmp option get solver presolve -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.loadFiles(cmd, models); err != nil {
				return err
			}
			var results []OptionOutput
			for _, name := range args {
				v, ok, err := cc.Session.Option(cmd.Context(), name)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("option %q is not defined", name)
				}
				results = append(results, OptionOutput{Name: name, Type: v.Type.String(), Value: v.Any()})
			}
			return renderOptions(cc.Renderer, results)
		},
	}
	addModelFlag(cmd, &models)
	return cmd
}

func newOptionSetCommand() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set an option and show the value the interpreter stored",
		Long: `Set an option in a fresh session and show the value read back.

The value is typed by its form: integers, then floats, then text.
Options set this way last for one invocation; put persistent defaults
under options in leapmp.yaml.`,
		Example: `  leapmp option set presolve 0
  leapmp option set solver highs`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.loadFiles(cmd, models); err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]
			if err := cc.Session.SetOption(ctx, name, session.ParseOption(args[1])); err != nil {
				return err
			}
			v, _, err := cc.Session.Option(ctx, name)
			if err != nil {
				return err
			}
			return renderOptions(cc.Renderer, []OptionOutput{{Name: name, Type: v.Type.String(), Value: v.Any()}})
		},
	}
	addModelFlag(cmd, &models)
	return cmd
}

func renderOptions(r *output.Renderer, results []OptionOutput) error {
	mode := r.EffectiveMode()
	switch mode {
	case output.ModeJSON:
		enc := json.NewEncoder(r.Writer())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case output.ModeText, output.ModeMarkdown:
		for _, o := range results {
			r.Println(output.FormatKeyValue(mode, r.Styles(), o.Name, fmt.Sprint(o.Value)))
		}
	default:
		for _, o := range results {
			r.Printf("%s = %v\n", o.Name, o.Value)
		}
	}
	return nil
}
