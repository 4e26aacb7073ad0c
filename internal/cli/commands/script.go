package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.starlark.net/starlark"

	starctx "github.com/leapstack-labs/leapmp/internal/starlark"
)

// ScriptOptions holds options for the script command.
type ScriptOptions struct {
	Models []string
	Expr   string
}

// NewScriptCommand creates the script command.
func NewScriptCommand() *cobra.Command {
	opts := &ScriptOptions{}
	cmd := &cobra.Command{
		Use:   "script <file.star> [arg]...",
		Short: "Run a Starlark script against a session",
		Long: `Run a Starlark script bound to a fresh session.

Scripts call eval, read, read_data, solve, reset, display, option,
set_option, value, entities, variable, data and cd. Extra arguments are
available to the script as the list args. With --expr a single expression
is evaluated and its value printed instead.`,
		Example: `  leapmp script sweep.star 10 20 30
  leapmp script -m diet.mod -e 'entities("variable")'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Expr == "" && len(args) == 0 {
				return errors.New("a script file or --expr is required")
			}
			return runScript(cmd, args, opts)
		},
	}
	addModelFlag(cmd, &opts.Models)
	cmd.Flags().StringVarP(&opts.Expr, "expr", "e", "", "Evaluate an expression and print its value")
	return cmd
}

func runScript(cmd *cobra.Command, args []string, opts *ScriptOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := cc.loadFiles(cmd, opts.Models); err != nil {
		return err
	}

	exec := starctx.NewExecutionContext(cc.Session,
		starctx.WithLogger(cc.Logger),
		starctx.WithPrint(func(msg string) { cc.Renderer.Println(msg) }),
	)

	if opts.Expr != "" {
		v, err := exec.EvalExpr(ctx, opts.Expr)
		if err != nil {
			return err
		}
		cc.Renderer.Println(v.String())
		return nil
	}

	scriptArgs := make([]starlark.Value, 0, len(args)-1)
	for _, a := range args[1:] {
		scriptArgs = append(scriptArgs, starlark.String(a))
	}
	if err := exec.AddGlobals(starlark.StringDict{"args": starlark.NewList(scriptArgs)}); err != nil {
		return err
	}

	if _, err := exec.ExecFile(ctx, args[0], nil); err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return fmt.Errorf("%s", starctx.Backtrace(err))
		}
		return err
	}
	return nil
}
