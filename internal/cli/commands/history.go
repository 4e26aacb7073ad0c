package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/internal/state"
	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show journaled sessions and their operations",
		Long: `Show the sessions recorded in the state database, newest first, or the
operations of one session in the order they ran.`,
		Example: `  leapmp history
  leapmp history 1b4e28ba-2fa1-11d2-883f-0016d3cca427 -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContextWithoutSession(cmd)
			if err != nil {
				return err
			}
			if cc.Cfg.StatePath == "" || cc.Cfg.StatePath == ":memory:" {
				return errors.New("no state database configured\nHint: Set state_path in leapmp.yaml")
			}
			if _, err := os.Stat(cc.Cfg.StatePath); err != nil {
				return fmt.Errorf("state database %s not found", cc.Cfg.StatePath)
			}

			store := state.NewSQLiteStore(cc.Cfg.Engine.Type, cc.Logger)
			if err := store.Open(cmd.Context(), cc.Cfg.StatePath); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var f *frame.Frame
			if len(args) == 1 {
				f, err = eventsFrame(cmd, store, args[0])
			} else {
				f, err = sessionsFrame(cmd, store, limit)
			}
			if err != nil {
				return err
			}
			return cc.Renderer.RenderFrame(f)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to show")
	return cmd
}

func sessionsFrame(cmd *cobra.Command, store *state.SQLiteStore, limit int) (*frame.Frame, error) {
	sessions, err := store.ListSessions(cmd.Context(), limit)
	if err != nil {
		return nil, err
	}
	f, err := frame.New([]string{"id"}, "engine", "started", "closed", "events")
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		closed := ""
		if s.ClosedAt != nil {
			closed = formatTime(*s.ClosedAt)
		}
		if err := f.AddRow(engine.Tuple{engine.Str(s.ID)},
			engine.Str(s.Engine),
			engine.Str(formatTime(s.StartedAt)),
			engine.Str(closed),
			engine.Num(float64(s.Events)),
		); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func eventsFrame(cmd *cobra.Command, store *state.SQLiteStore, id string) (*frame.Frame, error) {
	events, err := store.ListEvents(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	f, err := frame.New([]string{"seq"}, "op", "detail", "error", "ms", "at")
	if err != nil {
		return nil, err
	}
	for i, ev := range events {
		if err := f.AddRow(engine.Tuple{engine.Num(float64(i + 1))},
			engine.Str(ev.Op),
			engine.Str(ev.Detail),
			engine.Str(ev.Err),
			engine.Num(float64(ev.Duration.Microseconds())/1000),
			engine.Str(formatTime(ev.At)),
		); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format(time.DateTime)
}
