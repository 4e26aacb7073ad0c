// Package engine defines the contract between leapmp and an external
// mathematical-programming interpreter.
//
// The interpreter owns every declared entity, performs all parsing, model
// generation and solving. This package only describes the calls the facade
// makes into it. Concrete engines live under pkg/engines/ and register
// themselves with the engine registry; tests use pkg/engine/enginetest.
package engine

import (
	"context"
)

// Config describes how to start an engine instance.
// It corresponds to the environment an interpreter process runs in.
type Config struct {
	// Type selects the registered engine implementation (e.g. "bridge").
	Type string

	// Path is the location of the interpreter executable, if any.
	Path string

	// Args are extra command line arguments passed to the interpreter.
	Args []string

	// Env holds additional environment variables for the interpreter.
	Env map[string]string

	// Dir is the initial working directory of the interpreter.
	Dir string

	// Params contains engine-specific settings.
	Params map[string]any
}

// Lifecycle controls the interpreter instance itself.
type Lifecycle interface {
	// Start launches the interpreter. It is called exactly once.
	Start(ctx context.Context, cfg Config) error

	// Close stops the interpreter and releases its resources.
	Close() error

	// IsRunning reports whether the interpreter is alive.
	IsRunning() bool
}

// Executor runs statements and files inside the interpreter.
//
// Diagnostics produced while executing are delivered to the installed
// ErrorHandler; if the handler returns an error the operation stops and
// returns that error.
type Executor interface {
	// Evaluate interprets a possibly empty sequence of statements.
	Evaluate(ctx context.Context, statements string) error

	// ReadFile interprets a model or script file.
	ReadFile(ctx context.Context, path string) error

	// ReadDataFile interprets a file in data mode.
	ReadDataFile(ctx context.Context, path string) error

	// Solve solves the current model with the configured solver.
	Solve(ctx context.Context) error

	// Value evaluates a scalar expression.
	Value(ctx context.Context, expr string) (Value, error)
}

// Entities gives access to declared entities.
// Calls referring to an entity that no longer exists return ErrNotFound.
type Entities interface {
	// LookupEntity returns the handle of the named entity of the given kind.
	LookupEntity(ctx context.Context, kind Kind, name string) (Handle, error)

	// ListEntities returns every entity of the given kind in the order
	// the interpreter reports them (usually declaration order).
	ListEntities(ctx context.Context, kind Kind) ([]Handle, error)

	// Attribute reads a suffix (val, lb, ub, body, dual, ...) of one
	// instance of an entity. A nil index addresses a scalar entity.
	Attribute(ctx context.Context, h Handle, attr string, index Tuple) (Value, error)

	// SetAttribute assigns a suffix of one instance of an entity.
	SetAttribute(ctx context.Context, h Handle, attr string, index Tuple, v Value) error

	// Members returns the members of a set instance.
	Members(ctx context.Context, h Handle, index Tuple) ([]Tuple, error)

	// Contains tests membership of a tuple in a set instance.
	Contains(ctx context.Context, h Handle, index Tuple, member Tuple) (bool, error)
}

// DataExchange moves tabular data between the host and the interpreter.
type DataExchange interface {
	// Query evaluates display expressions and returns them as one table.
	// It fails when the expressions cannot be indexed over the same set.
	Query(ctx context.Context, expressions []string) (*RawFrame, error)

	// Assign assigns the value columns of a table to the entities with the
	// same names.
	Assign(ctx context.Context, frame *RawFrame) error
}

// Options reads and writes interpreter options.
type Options interface {
	SetIntOption(ctx context.Context, name string, v int64) error
	SetFloatOption(ctx context.Context, name string, v float64) error
	SetBoolOption(ctx context.Context, name string, v bool) error
	SetStringOption(ctx context.Context, name string, v string) error

	// Option returns the stored string form of an option.
	// Unknown options return ErrNotFound.
	Option(ctx context.Context, name string) (string, error)
}

// Handlers holds the callbacks the interpreter reports through.
type Handlers interface {
	SetOutputHandler(h OutputHandler)
	SetErrorHandler(h ErrorHandler)
	OutputHandler() OutputHandler
	ErrorHandler() ErrorHandler
}

// Workdir exposes the interpreter's working directory.
type Workdir interface {
	Cwd(ctx context.Context) (string, error)

	// SetCwd changes the working directory and returns the new one.
	SetCwd(ctx context.Context, path string) (string, error)
}

// Engine is the full capability set of an interpreter.
type Engine interface {
	Lifecycle
	Executor
	Entities
	DataExchange
	Options
	Handlers
	Workdir
}

// Interrupter is implemented by engines able to abort a running operation.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}
