// Package starlark runs Starlark scripts bound to a session.
//
// Scripts see the session through predeclared builtins (eval, read, solve,
// value, data and friends). Each call runs under the context passed to
// ExecFile or EvalExpr; cancelling it cancels the script.
package starlark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/leapmp/pkg/session"
)

// contextKey is the thread-local key holding the call's context.Context.
const contextKey = "context"

// fileOptions enables top-level control flow and global reassignment,
// which plain scripts rely on.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// ExecutionContext provides globals and state for script execution.
type ExecutionContext struct {
	sess   *session.Session
	logger *slog.Logger
	print  func(msg string)

	// globals is the combined set of builtins and user globals.
	globals starlark.StringDict

	// mu protects globals
	mu sync.RWMutex
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithPrint routes the script's print() calls.
func WithPrint(fn func(msg string)) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.print = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(ctx *ExecutionContext) {
		if logger != nil {
			ctx.logger = logger
		}
	}
}

// NewExecutionContext creates an execution context bound to sess.
func NewExecutionContext(sess *session.Session, opts ...ContextOption) *ExecutionContext {
	ctx := &ExecutionContext{
		sess:    sess,
		logger:  slog.New(slog.DiscardHandler),
		globals: Builtins(sess),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if ctx.print == nil {
		logger := ctx.logger
		ctx.print = func(msg string) { logger.Info(msg) }
	}
	return ctx
}

// Globals returns the predeclared names visible to scripts.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	out := make(starlark.StringDict, len(ctx.globals))
	for k, v := range ctx.globals {
		out[k] = v
	}
	return out
}

// AddGlobals adds predeclared names.
// Returns error if a name conflicts with a builtin.
func (ctx *ExecutionContext) AddGlobals(globals starlark.StringDict) error {
	builtins := Builtins(nil)
	for name := range globals {
		if _, ok := builtins[name]; ok {
			return fmt.Errorf("global %q conflicts with builtin", name)
		}
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for name, v := range globals {
		ctx.globals[name] = v
	}
	return nil
}

// ExecFile runs a script. src may be a string, []byte or nil, in which
// case the file is read from filename. Returns the script's globals.
func (ctx *ExecutionContext) ExecFile(c context.Context, filename string, src any) (starlark.StringDict, error) {
	thread, done := ctx.newThread(c, filename)
	defer done()

	ctx.logger.Debug("running script", slog.String("file", filename))
	globals, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, ctx.Globals())
	if err != nil {
		if cerr := c.Err(); cerr != nil {
			return globals, fmt.Errorf("%s: %w", filename, cerr)
		}
		return globals, err
	}
	return globals, nil
}

// EvalExpr evaluates a single expression, as typed into a REPL.
func (ctx *ExecutionContext) EvalExpr(c context.Context, expr string) (starlark.Value, error) {
	return ctx.EvalExprWithLocals(c, expr, nil)
}

// EvalExprWithLocals evaluates an expression with additional local variables.
// Locals take precedence over globals.
func (ctx *ExecutionContext) EvalExprWithLocals(c context.Context, expr string, locals starlark.StringDict) (starlark.Value, error) {
	thread, done := ctx.newThread(c, "<expr>")
	defer done()

	env := ctx.Globals()
	for k, v := range locals {
		env[k] = v
	}

	result, err := starlark.EvalOptions(fileOptions, thread, "<expr>", expr, env)
	if err != nil {
		if cerr := c.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, &EvalError{Expr: expr, Message: err.Error(), Err: err}
	}
	return result, nil
}

// newThread creates a thread carrying c and cancelled with it. The
// returned func must be called when the thread is finished.
func (ctx *ExecutionContext) newThread(c context.Context, name string) (*starlark.Thread, func()) {
	printFn := ctx.print
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			printFn(msg)
		},
	}
	thread.SetLocal(contextKey, c)
	stop := context.AfterFunc(c, func() {
		thread.Cancel(context.Cause(c).Error())
	})
	return thread, func() { stop() }
}

// contextOf returns the context the thread runs under.
func contextOf(thread *starlark.Thread) context.Context {
	if c, ok := thread.Local(contextKey).(context.Context); ok {
		return c
	}
	return context.Background()
}

// EvalError represents an error during expression evaluation.
type EvalError struct {
	Expr    string
	Message string
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("error evaluating %q: %s", e.Expr, e.Message)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Backtrace returns the Starlark call stack of a script error, or the
// error text for other errors.
func Backtrace(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}
