package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "entities [kind]...",
		Short: "List declared entities",
		Long: `Read the --model files and list the declared entities by kind.

Kinds are variable, constraint, objective, set and parameter (plural forms
are accepted). Without arguments all kinds are listed.`,
		Example: `  leapmp entities -m diet.mod
  leapmp entities variables -m diet.mod -o json`,
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			var kinds []string
			for _, k := range engine.Kinds() {
				kinds = append(kinds, k.String())
			}
			return kinds, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := engine.Kinds()
			if len(args) > 0 {
				kinds = kinds[:0:0]
				for _, a := range args {
					k, err := engine.ParseKind(a)
					if err != nil {
						return err
					}
					kinds = append(kinds, k)
				}
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.loadFiles(cmd, models); err != nil {
				return err
			}

			f, err := frame.New([]string{"kind", "name"})
			if err != nil {
				return err
			}
			for _, k := range kinds {
				names, err := cc.Session.Names(cmd.Context(), k)
				if err != nil {
					return err
				}
				for _, n := range names {
					if err := f.AddRow(engine.Tuple{engine.Str(k.String()), engine.Str(n)}); err != nil {
						return err
					}
				}
			}
			return cc.Renderer.RenderFrame(f)
		},
	}
	addModelFlag(cmd, &models)
	return cmd
}
