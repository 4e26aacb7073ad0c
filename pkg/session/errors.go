package session

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// ErrEngineNotRunning is returned by every call made on a session that is
// closed, or through an entity or collection belonging to one.
var ErrEngineNotRunning = errors.New("engine is not running")

// ErrNilFrame is returned by SetData when given no frame.
var ErrNilFrame = errors.New("no frame to assign")

// StaleReferenceError is returned when an entity reference outlived the
// entity it pointed at, for example after a reset or a redeclaration.
type StaleReferenceError struct {
	Kind engine.Kind
	Name string
	Err  error
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale reference to %s %s", e.Kind, e.Name)
}

func (e *StaleReferenceError) Unwrap() error { return e.Err }

// NotFoundError is returned when a named entity does not exist.
type NotFoundError struct {
	Kind engine.Kind // zero value with Any set for kind-agnostic lookups
	Any  bool
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Any {
		return fmt.Sprintf("entity %q not found", e.Name)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// UnsupportedOptionTypeError is returned when an option value has a type
// no engine setter accepts.
type UnsupportedOptionTypeError struct {
	Name string
	Type string
}

func (e *UnsupportedOptionTypeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("unsupported option value type %s", e.Type)
	}
	return fmt.Sprintf("option %s: unsupported value type %s", e.Name, e.Type)
}

// OptionRangeError is returned when an unsigned option value does not fit
// the engine's integer setter.
type OptionRangeError struct {
	Name  string
	Value string
}

func (e *OptionRangeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("option value %s out of integer range", e.Value)
	}
	return fmt.Sprintf("option %s: value %s out of integer range", e.Name, e.Value)
}

// InvalidOptionNameError is returned for option names that are not
// identifiers.
type InvalidOptionNameError struct {
	Name string
}

func (e *InvalidOptionNameError) Error() string {
	return fmt.Sprintf("invalid option name %q", e.Name)
}

// EngineReportedError is an error diagnostic the engine raised while no
// error handler was installed.
type EngineReportedError struct {
	Op         string
	Diagnostic *engine.Diagnostic
}

func (e *EngineReportedError) Error() string {
	if e.Op == "" {
		return e.Diagnostic.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Diagnostic.Error())
}

func (e *EngineReportedError) Unwrap() error { return e.Diagnostic }

// staleOr converts an engine not-found answer into a StaleReferenceError.
func staleOr(h engine.Handle, err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return &StaleReferenceError{Kind: h.Kind, Name: h.Name, Err: err}
	}
	return err
}
