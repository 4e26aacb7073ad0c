// Package session provides the host-facing facade over an interpreter
// engine: entity references, lazily populated entity collections, option
// access, data exchange and handler routing.
//
// A Session owns its engine. Entities and collections obtained from it are
// views that must not outlive it; once the session is closed every call
// made through them fails with ErrEngineNotRunning.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// Lifecycle states.
const (
	stateCreated int32 = iota
	stateRunning
	stateClosed
)

// Config holds session configuration.
type Config struct {
	// Engine selects and configures the interpreter.
	Engine engine.Config
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Metrics receives per-operation timings (optional)
	Metrics MetricsRecorder
	// Journal records session operations (optional)
	Journal Journal
	// Output receives interpreter output while no output handler is
	// installed. Defaults to os.Stdout.
	Output io.Writer
	// Diagnostics receives warnings while no error handler is installed.
	// Defaults to os.Stderr.
	Diagnostics io.Writer
	// Options are applied once the engine has started.
	Options map[string]any
}

// Session is the facade over one running engine.
type Session struct {
	id      string
	eng     engine.Engine
	logger  *slog.Logger
	metrics MetricsRecorder
	journal Journal
	out     io.Writer
	diag    io.Writer

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	// callMu guards inflight, the number of engine calls in progress.
	// Close waits on idle until it drops to zero.
	callMu   sync.Mutex
	idle     *sync.Cond
	inflight int

	// gate admits one declaration-mutating operation at a time.
	gate *semaphore.Weighted

	handlerMu sync.RWMutex
	outH      engine.OutputHandler
	errH      engine.ErrorHandler

	variables   *Collection[*Variable]
	constraints *Collection[*Constraint]
	objectives  *Collection[*Objective]
	sets        *Collection[*Set]
	parameters  *Collection[*Parameter]

	tasksMu sync.Mutex
	tasks   map[*Task]struct{}
}

// Open creates the engine registered for cfg.Engine.Type and starts a
// session on it.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	eng, err := engine.New(cfg.Engine, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return New(ctx, eng, cfg)
}

// New starts eng and returns a running session owning it.
// If the engine fails to start it is closed and the error returned.
func New(ctx context.Context, eng engine.Engine, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		id:      uuid.NewString(),
		eng:     eng,
		metrics: cfg.Metrics,
		journal: cfg.Journal,
		out:     cfg.Output,
		diag:    cfg.Diagnostics,
		gate:    semaphore.NewWeighted(1),
		tasks:   make(map[*Task]struct{}),
	}
	s.idle = sync.NewCond(&s.callMu)
	s.logger = logger.With("session", s.id)
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.diag == nil {
		s.diag = os.Stderr
	}

	s.variables = newCollection(s, engine.KindVariable, func(e entity) *Variable { return &Variable{e} })
	s.constraints = newCollection(s, engine.KindConstraint, func(e entity) *Constraint { return &Constraint{e} })
	s.objectives = newCollection(s, engine.KindObjective, func(e entity) *Objective { return &Objective{e} })
	s.sets = newCollection(s, engine.KindSet, func(e entity) *Set { return &Set{e} })
	s.parameters = newCollection(s, engine.KindParameter, func(e entity) *Parameter { return &Parameter{e} })

	eng.SetOutputHandler(outputRouter{s})
	eng.SetErrorHandler(errorRouter{s})

	s.logger.Debug("starting engine", "type", cfg.Engine.Type, "path", cfg.Engine.Path)
	start := time.Now()
	if err := eng.Start(ctx, cfg.Engine); err != nil {
		s.state.Store(stateClosed)
		_ = eng.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	s.state.Store(stateRunning)
	s.observe(ctx, "open", cfg.Engine.Type, start, nil)

	if err := s.applyOptions(ctx, cfg.Options); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// IsRunning reports whether the session is open and its engine alive.
func (s *Session) IsRunning() bool {
	return s.state.Load() == stateRunning && s.eng.IsRunning()
}

// Close stops the engine. Calls already inside the engine are allowed to
// finish first; new calls fail with ErrEngineNotRunning. It is safe to
// call more than once; later calls return the result of the first.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		start := time.Now()
		s.callMu.Lock()
		s.state.Store(stateClosed)
		s.callMu.Unlock()

		s.cancelTasks()
		s.waitTasks()

		s.callMu.Lock()
		for s.inflight > 0 {
			s.idle.Wait()
		}
		s.callMu.Unlock()

		s.invalidateAll()
		s.closeErr = s.eng.Close()
		s.observe(context.Background(), "close", "", start, s.closeErr)
	})
	return s.closeErr
}

func (s *Session) check() error {
	if s.state.Load() != stateRunning {
		return ErrEngineNotRunning
	}
	return nil
}

// enter registers an engine call, failing once the session is closed.
func (s *Session) enter() error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.inflight++
	return nil
}

func (s *Session) leave() {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

// do runs one engine call on behalf of op, recording its outcome.
func (s *Session) do(ctx context.Context, op, detail string, fn func(context.Context) error) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	start := time.Now()
	err := fn(ctx)
	var reported *EngineReportedError
	if errors.As(err, &reported) && reported.Op == "" {
		reported.Op = op
	}
	s.observe(ctx, op, detail, start, err)
	return err
}

// mutate runs a declaration-mutating call. Collections are invalidated
// afterwards whether or not the call succeeded, since a failing script may
// still have declared entities before it stopped.
func (s *Session) mutate(ctx context.Context, op, detail string, fn func(context.Context) error) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)
	defer s.invalidateAll()
	return s.do(ctx, op, detail, fn)
}

func (s *Session) observe(ctx context.Context, op, detail string, start time.Time, err error) {
	d := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, d)
	if err != nil {
		s.logger.Debug("engine call failed", "op", op, "duration", d, "error", err)
	} else {
		s.logger.Debug("engine call", "op", op, "duration", d)
	}
	if s.journal == nil || !journaled[op] {
		return
	}
	ev := Event{
		SessionID: s.id,
		Op:        op,
		Detail:    truncate(detail),
		Duration:  d,
		At:        start.UTC(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	if jerr := s.journal.Record(context.WithoutCancel(ctx), ev); jerr != nil {
		s.logger.Warn("failed to journal event", "op", op, "error", jerr)
	}
}

func (s *Session) invalidateAll() {
	s.variables.Invalidate()
	s.constraints.Invalidate()
	s.objectives.Invalidate()
	s.sets.Invalidate()
	s.parameters.Invalidate()
}

// --- Declaration-mutating operations ---

// Eval interprets statements.
func (s *Session) Eval(ctx context.Context, statements string) error {
	return s.mutate(ctx, "eval", statements, func(ctx context.Context) error {
		return s.eng.Evaluate(ctx, statements)
	})
}

// Read interprets a model or script file.
func (s *Session) Read(ctx context.Context, path string) error {
	return s.mutate(ctx, "read", path, func(ctx context.Context) error {
		return s.eng.ReadFile(ctx, path)
	})
}

// ReadData interprets a data file.
func (s *Session) ReadData(ctx context.Context, path string) error {
	return s.mutate(ctx, "read_data", path, func(ctx context.Context) error {
		return s.eng.ReadDataFile(ctx, path)
	})
}

// Reset clears every declaration in the interpreter.
func (s *Session) Reset(ctx context.Context) error {
	return s.mutate(ctx, "reset", "", func(ctx context.Context) error {
		return s.eng.Evaluate(ctx, "reset;")
	})
}

// --- Non-mutating operations ---

// Solve solves the current model.
func (s *Session) Solve(ctx context.Context) error {
	return s.do(ctx, "solve", "", s.eng.Solve)
}

// Value evaluates a scalar expression.
func (s *Session) Value(ctx context.Context, expr string) (engine.Value, error) {
	var v engine.Value
	err := s.do(ctx, "value", expr, func(ctx context.Context) error {
		var err error
		v, err = s.eng.Value(ctx, expr)
		return err
	})
	return v, err
}

// Display evaluates a display statement for the given expressions. The
// result is delivered to the output handler.
func (s *Session) Display(ctx context.Context, expressions ...string) error {
	if len(expressions) == 0 {
		return fmt.Errorf("display requires at least one expression")
	}
	stmt := "display " + strings.Join(expressions, ", ") + ";"
	return s.do(ctx, "display", stmt, func(ctx context.Context) error {
		return s.eng.Evaluate(ctx, stmt)
	})
}

// Data evaluates the expressions and returns them as one frame. The
// expressions must be indexed over the same set.
func (s *Session) Data(ctx context.Context, expressions ...string) (*frame.Frame, error) {
	if len(expressions) == 0 {
		return nil, fmt.Errorf("data requires at least one expression")
	}
	var f *frame.Frame
	err := s.do(ctx, "data", strings.Join(expressions, ", "), func(ctx context.Context) error {
		raw, err := s.eng.Query(ctx, expressions)
		if err != nil {
			return err
		}
		f, err = frame.FromQuery(raw)
		return err
	})
	return f, err
}

// SetData assigns the value columns of f to the entities they name.
// A value column may carry a suffix ("x.lb").
func (s *Session) SetData(ctx context.Context, f *frame.Frame) error {
	if f == nil {
		return ErrNilFrame
	}
	return s.do(ctx, "set_data", strings.Join(f.ValueColumns(), ", "), func(ctx context.Context) error {
		raw, err := f.ToAssignment(ctx, frame.ResolverFunc(s.declared))
		if err != nil {
			return err
		}
		return s.eng.Assign(ctx, raw)
	})
}

// declared reports whether a frame column names an entity of any kind.
func (s *Session) declared(ctx context.Context, column string) (bool, error) {
	name, _, _ := strings.Cut(column, ".")
	_, err := s.lookupAny(ctx, name)
	if err == nil {
		return true, nil
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

// Cwd returns the interpreter's working directory.
func (s *Session) Cwd(ctx context.Context) (string, error) {
	var dir string
	err := s.do(ctx, "cwd", "", func(ctx context.Context) error {
		var err error
		dir, err = s.eng.Cwd(ctx)
		return err
	})
	return dir, err
}

// Cd changes the interpreter's working directory and returns the new one.
// An empty path leaves it unchanged.
func (s *Session) Cd(ctx context.Context, path string) (string, error) {
	if path == "" {
		return s.Cwd(ctx)
	}
	var dir string
	err := s.do(ctx, "cd", path, func(ctx context.Context) error {
		var err error
		dir, err = s.eng.SetCwd(ctx, path)
		return err
	})
	return dir, err
}

// --- Handlers ---

// SetOutputHandler installs h; nil restores writing to the output writer.
func (s *Session) SetOutputHandler(h engine.OutputHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.outH = h
}

// OutputHandler returns the installed output handler, or nil.
func (s *Session) OutputHandler() engine.OutputHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.outH
}

// SetErrorHandler installs h; nil restores the default policy where
// errors are returned as *EngineReportedError and warnings are logged.
func (s *Session) SetErrorHandler(h engine.ErrorHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.errH = h
}

// ErrorHandler returns the installed error handler, or nil.
func (s *Session) ErrorHandler() engine.ErrorHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.errH
}

type outputRouter struct{ s *Session }

func (r outputRouter) HandleOutput(kind engine.OutputKind, msg string) {
	if h := r.s.OutputHandler(); h != nil {
		h.HandleOutput(kind, msg)
		return
	}
	if strings.HasSuffix(msg, "\n") {
		_, _ = io.WriteString(r.s.out, msg)
		return
	}
	_, _ = fmt.Fprintln(r.s.out, msg)
}

type errorRouter struct{ s *Session }

func (r errorRouter) HandleError(d *engine.Diagnostic) error {
	if h := r.s.ErrorHandler(); h != nil {
		return h.HandleError(d)
	}
	return &EngineReportedError{Diagnostic: d}
}

func (r errorRouter) HandleWarning(d *engine.Diagnostic) error {
	if h := r.s.ErrorHandler(); h != nil {
		return h.HandleWarning(d)
	}
	r.s.logger.Warn("engine warning", "message", d.Message, "source", d.Source, "line", d.Line)
	_, _ = fmt.Fprintf(r.s.diag, "Warning: %s\n", d.Error())
	return nil
}
