package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a session over HTTP",
		Long: `Start one session and serve it over an HTTP JSON API.

The session reads the --model files first. Files listed under server.watch
in leapmp.yaml are read at startup and again, after a reset, whenever one
of them changes. Prometheus metrics are served at /metrics.`,
		Example: `  leapmp serve -m diet.mod -m diet.dat
  leapmp serve --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if err := cc.loadFiles(cmd, models); err != nil {
				return err
			}

			srv := server.New(server.Config{
				Session: cc.Session,
				Addr:    cc.Cfg.Server.Addr,
				Watch:   cc.Cfg.Server.Watch,
				Metrics: cc.Metrics.Handler(),
				Logger:  cc.Logger,
			})
			if len(cc.Cfg.Server.Watch) > 0 && len(models) == 0 {
				if err := srv.Reload(ctx); err != nil {
					return err
				}
			}
			cc.Renderer.Notice("serving session %s on http://%s", cc.Session.ID(), cc.Cfg.Server.Addr)
			return srv.Serve(ctx)
		},
	}
	addModelFlag(cmd, &models)
	return cmd
}
