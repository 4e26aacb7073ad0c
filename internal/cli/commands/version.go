package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display leapmp version and the registered engines.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leapmp v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Engines: %v\n", engine.List())
		},
	}
}
