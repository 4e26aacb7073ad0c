// Package output renders command results for terminals, pipes and tools.
//
// In auto mode a renderer writing to a terminal uses styled text and
// falls back to markdown otherwise. The json, csv and yaml modes are
// machine readable and never styled.
package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
	ModeCSV      Mode = "csv"
	ModeYAML     Mode = "yaml"
)

// Renderer writes command output in the configured mode.
type Renderer struct {
	w      io.Writer
	errw   io.Writer
	mode   Mode
	styles Styles
}

// NewRenderer creates a renderer writing results to w and notices to errw.
func NewRenderer(w, errw io.Writer, mode Mode) *Renderer {
	r := &Renderer{w: w, errw: errw, mode: mode}
	if r.EffectiveMode() == ModeText && isTerminal(w) {
		r.styles = DefaultStyles()
	} else {
		r.styles = PlainStyles()
	}
	return r
}

// EffectiveMode resolves auto against the output writer.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if isTerminal(r.w) {
		return ModeText
	}
	return ModeMarkdown
}

// Writer returns the result writer.
func (r *Renderer) Writer() io.Writer { return r.w }

// ErrWriter returns the notice writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errw }

// Styles returns the styles for the effective mode.
func (r *Renderer) Styles() Styles { return r.styles }

// Println writes a line to the result writer.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.w, a...)
}

// Printf writes formatted text to the result writer.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.w, format, a...)
}

// Notice writes a muted line to the notice writer.
func (r *Renderer) Notice(format string, a ...any) {
	_, _ = fmt.Fprintln(r.errw, r.styles.Muted.Render(fmt.Sprintf(format, a...)))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
