package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "eval [statements]",
		Short: "Evaluate statements",
		Long: `Evaluate statements in a fresh session.

Arguments are joined with spaces. Without arguments the statements are
read from standard input.`,
		Example: `  leapmp eval 'var x >= 0; minimize f: x; solve; display x;'
  echo 'display 1 + 1;' | leapmp eval`,
		RunE: func(cmd *cobra.Command, args []string) error {
			statements := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read statements: %w", err)
				}
				statements = string(b)
			}
			if strings.TrimSpace(statements) == "" {
				return fmt.Errorf("no statements to evaluate")
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.loadFiles(cmd, models); err != nil {
				return err
			}
			return cc.Session.Eval(cmd.Context(), statements)
		},
	}
	addModelFlag(cmd, &models)
	return cmd
}
