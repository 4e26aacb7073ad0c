package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

const (
	replPrompt     = "leapmp> "
	replContPrompt = "    ...> "
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	var models []string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Start an interactive session on the configured engine.

Statements are sent once a line ends with a semicolon. Lines starting with
a dot are shell commands; type .help to list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.loadFiles(cmd, models); err != nil {
				return err
			}
			return runREPL(cmd, cc)
		},
	}
	addModelFlag(cmd, &models)
	return cmd
}

func runREPL(cmd *cobra.Command, cc *CommandContext) error {
	ctx := cmd.Context()
	r := newREPL(cc.Session, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var historyFile string
	if cc.Cfg.StatePath != "" && cc.Cfg.StatePath != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(cc.Cfg.StatePath), "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    r.completer(ctx),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(r.out, "leapmp session %s\n", cc.Session.ID())
	_, _ = fmt.Fprintln(r.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(r.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			r.buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if r.handleLine(ctx, line) {
			break
		}
		if r.pending() {
			rl.SetPrompt(replContPrompt)
		} else {
			rl.SetPrompt(replPrompt)
		}
	}
	return nil
}

type repl struct {
	sess *session.Session
	out  io.Writer
	errw io.Writer
	buf  strings.Builder
}

func newREPL(sess *session.Session, out, errw io.Writer) *repl {
	return &repl{sess: sess, out: out, errw: errw}
}

func (r *repl) pending() bool { return r.buf.Len() > 0 }

// handleLine processes one input line and reports whether to quit.
func (r *repl) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !r.pending() && strings.HasPrefix(line, ".") {
		return r.dot(ctx, line)
	}

	r.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		r.buf.WriteString("\n")
		return false
	}
	statements := r.buf.String()
	r.buf.Reset()
	r.report(r.sess.Eval(ctx, statements))
	return false
}

func (r *repl) dot(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	args := parts[1:]

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(r.out)

	case ".solve":
		r.report(r.sess.Solve(ctx))

	case ".reset":
		r.report(r.sess.Reset(ctx))

	case ".read":
		if len(args) != 1 {
			r.usage(".read <file>")
			break
		}
		if isDataFile(args[0]) {
			r.report(r.sess.ReadData(ctx, args[0]))
		} else {
			r.report(r.sess.Read(ctx, args[0]))
		}

	case ".display":
		if len(args) == 0 {
			r.usage(".display <expr>...")
			break
		}
		r.report(r.sess.Display(ctx, args...))

	case ".entities":
		kinds := engine.Kinds()
		if len(args) > 0 {
			k, err := engine.ParseKind(args[0])
			if err != nil {
				r.report(err)
				break
			}
			kinds = []engine.Kind{k}
		}
		for _, k := range kinds {
			names, err := r.sess.Names(ctx, k)
			if err != nil {
				r.report(err)
				break
			}
			if len(names) > 0 {
				_, _ = fmt.Fprintf(r.out, "%s: %s\n", k, strings.Join(names, " "))
			}
		}

	case ".option":
		switch len(args) {
		case 1:
			v, ok, err := r.sess.Option(ctx, args[0])
			switch {
			case err != nil:
				r.report(err)
			case !ok:
				_, _ = fmt.Fprintf(r.errw, "option %s is not defined\n", args[0])
			default:
				_, _ = fmt.Fprintf(r.out, "%s = %s\n", args[0], v)
			}
		case 2:
			r.report(r.sess.SetOption(ctx, args[0], session.ParseOption(args[1])))
		default:
			r.usage(".option <name> [value]")
		}

	case ".cd":
		dir, err := r.sess.Cd(ctx, strings.Join(args, " "))
		if err != nil {
			r.report(err)
			break
		}
		_, _ = fmt.Fprintln(r.out, dir)

	case ".clear":
		_, _ = fmt.Fprint(r.out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(r.errw, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

func (r *repl) report(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(r.errw, "Error: %v\n", err)
	}
}

func (r *repl) usage(s string) {
	_, _ = fmt.Fprintf(r.errw, "Usage: %s\n", s)
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                   Show this help message
  .read <file>            Read a model file (.dat files in data mode)
  .solve                  Solve the current model
  .reset                  Discard all declarations and data
  .display <expr>...      Display expressions
  .entities [kind]        List declared entities
  .option <name> [value]  Show or set an option
  .cd [dir]               Show or change the working directory
  .clear                  Clear the screen
  .quit / .exit           Exit the REPL

Tips:
  - Statements are sent when a line ends with a semicolon (;)
  - ^C discards a partial statement
  - Tab completes commands and entity names
`
	_, _ = fmt.Fprintln(w, help)
}

// completer completes dot commands and, after .display, entity names.
func (r *repl) completer(ctx context.Context) *readline.PrefixCompleter {
	names := func(string) []string {
		var out []string
		for _, k := range engine.Kinds() {
			n, err := r.sess.Names(ctx, k)
			if err != nil {
				return nil
			}
			out = append(out, n...)
		}
		return out
	}
	var kinds []readline.PrefixCompleterInterface
	for _, k := range engine.Kinds() {
		kinds = append(kinds, readline.PcItem(k.String()))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".read"),
		readline.PcItem(".solve"),
		readline.PcItem(".reset"),
		readline.PcItem(".display", readline.PcItemDynamic(names)),
		readline.PcItem(".entities", kinds...),
		readline.PcItem(".option"),
		readline.PcItem(".cd"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
