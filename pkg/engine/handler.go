package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by an engine when a named entity or option does
// not exist (or no longer exists).
var ErrNotFound = errors.New("not found")

// Severity classifies an interpreter diagnostic.
type Severity int

// Diagnostic severities.
const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is an error or warning reported by the interpreter while
// evaluating statements or reading files.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source,omitempty"`
	Line     int      `json:"line,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

func (d *Diagnostic) Error() string {
	if d.Source != "" && d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", d.Source, d.Line, d.Message)
	}
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s", d.Line, d.Message)
	}
	return d.Message
}

// OutputKind classifies a block of interpreter output.
type OutputKind string

// Output kinds reported by interpreters.
const (
	OutputDisplay   OutputKind = "display"
	OutputSolve     OutputKind = "solve"
	OutputOption    OutputKind = "option"
	OutputStatement OutputKind = "statement"
	OutputOther     OutputKind = "other"
)

// OutputHandler receives every block of output the interpreter produces.
type OutputHandler interface {
	HandleOutput(kind OutputKind, msg string)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(kind OutputKind, msg string)

// HandleOutput calls f(kind, msg).
func (f OutputHandlerFunc) HandleOutput(kind OutputKind, msg string) { f(kind, msg) }

// ErrorHandler receives interpreter diagnostics. Returning a non-nil
// error aborts the running operation, which then returns that error.
type ErrorHandler interface {
	HandleError(d *Diagnostic) error
	HandleWarning(d *Diagnostic) error
}

// Dispatch routes a diagnostic to the matching ErrorHandler method.
func Dispatch(h ErrorHandler, d *Diagnostic) error {
	if h == nil {
		if d.Severity == SeverityError {
			return d
		}
		return nil
	}
	if d.Severity == SeverityError {
		return h.HandleError(d)
	}
	return h.HandleWarning(d)
}
