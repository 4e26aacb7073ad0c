package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Name is the registry name of the bridge engine.
const Name = "bridge"

// DefaultShutdownTimeout bounds how long Close waits for the interpreter.
const DefaultShutdownTimeout = 5 * time.Second

func init() {
	engine.Register(Name, func(logger *slog.Logger) engine.Engine { return New(logger) })
}

// ErrNotStarted is returned by calls made before Start or after Close.
var ErrNotStarted = errors.New("bridge: engine not started")

// Engine is an engine.Engine backed by an interpreter process.
type Engine struct {
	logger *slog.Logger

	// ShutdownTimeout bounds Close. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// transport opens the streams to the interpreter. The default spawns
	// cfg.Path as a child process.
	transport func(ctx context.Context, cfg engine.Config) (io.Reader, io.WriteCloser, error)

	gate *semaphore.Weighted

	mu      sync.Mutex
	conn    *Conn
	stdin   io.WriteCloser
	cmd     *exec.Cmd
	running bool
	abort   error

	handlersMu sync.RWMutex
	out        engine.OutputHandler
	errh       engine.ErrorHandler
}

// New creates a bridge engine that starts its interpreter as a child
// process.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{logger: logger, gate: semaphore.NewWeighted(1)}
	e.transport = e.spawn
	return e
}

// NewPiped creates a bridge engine speaking over existing streams, for
// interpreters that are already running.
func NewPiped(logger *slog.Logger, r io.Reader, w io.WriteCloser) *Engine {
	e := New(logger)
	e.transport = func(context.Context, engine.Config) (io.Reader, io.WriteCloser, error) {
		return r, w, nil
	}
	return e
}

// Start launches the interpreter and sends "initialize".
func (e *Engine) Start(ctx context.Context, cfg engine.Config) error {
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return errors.New("bridge: engine already started")
	}
	r, w, err := e.transport(ctx, cfg)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.stdin = w
	e.conn = NewConn(r, w, e.handle, e.logger)
	conn := e.conn
	e.mu.Unlock()

	go func() {
		if err := conn.Run(context.Background()); err != nil {
			e.logger.Warn("bridge connection failed", "error", err)
		}
	}()

	if err := e.call(ctx, MethodInitialize, InitializeParams{Dir: cfg.Dir, Params: cfg.Params}, nil); err != nil {
		e.teardown()
		return fmt.Errorf("initialize: %w", err)
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	e.logger.Debug("bridge engine started", "path", cfg.Path)
	return nil
}

func (e *Engine) spawn(_ context.Context, cfg engine.Config) (io.Reader, io.WriteCloser, error) {
	if cfg.Path == "" {
		return nil, nil, errors.New("bridge: interpreter path is required")
	}

	// The process outlives the Start context.
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
			cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("bridge: starting %s: %w", cfg.Path, err)
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			e.logger.Debug("interpreter stderr", "line", sc.Text())
		}
	}()

	e.cmd = cmd
	return stdout, stdin, nil
}

// Close asks the interpreter to shut down, then closes its input and
// waits for it to exit. The process is killed after ShutdownTimeout.
func (e *Engine) Close() error {
	e.mu.Lock()
	running := e.running
	e.running = false
	e.mu.Unlock()

	timeout := e.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	var shutdownErr error
	if running {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		shutdownErr = e.call(ctx, MethodShutdown, nil, nil)
		cancel()
		if errors.Is(shutdownErr, ErrClosed) {
			shutdownErr = nil
		}
	}
	return errors.Join(shutdownErr, e.teardown())
}

func (e *Engine) teardown() error {
	e.mu.Lock()
	stdin, cmd := e.stdin, e.cmd
	e.stdin, e.cmd, e.conn = nil, nil, nil
	e.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil {
		return nil
	}

	timeout := e.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	select {
	case err := <-exited:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.logger.Debug("interpreter exited", "code", exitErr.ExitCode())
			return nil
		}
		return err
	case <-time.After(timeout):
		e.logger.Warn("interpreter did not exit, killing it", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-exited
		return nil
	}
}

// IsRunning reports whether the interpreter connection is alive.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.conn == nil {
		return false
	}
	select {
	case <-e.conn.Done():
		return false
	default:
		return true
	}
}

// call sends one request. Only one request is in flight at a time.
func (e *Engine) call(ctx context.Context, method string, params, result any) error {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.gate.Release(1)

	e.mu.Lock()
	conn := e.conn
	e.abort = nil
	e.mu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}

	err := conn.Call(ctx, method, params, result)
	if errors.Is(err, errAborted) {
		e.mu.Lock()
		abort := e.abort
		e.mu.Unlock()
		if abort != nil {
			return abort
		}
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Stop the work the interpreter is still doing for this call.
		_ = conn.Notify(MethodInterrupt, nil)
	}
	return err
}

// handle serves messages sent by the interpreter.
func (e *Engine) handle(_ context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodOutput:
		p, err := decode[OutputParams](params)
		if err != nil {
			return nil, err
		}
		if h := e.OutputHandler(); h != nil {
			h.HandleOutput(p.Kind, p.Message)
		}
		return nil, nil
	case MethodDiagnostic:
		d, err := decode[engine.Diagnostic](params)
		if err != nil {
			return nil, err
		}
		if herr := engine.Dispatch(e.ErrorHandler(), &d); herr != nil {
			e.mu.Lock()
			e.abort = herr
			e.mu.Unlock()
			return nil, errAborted
		}
		return nil, nil
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + method}
	}
}

// Interrupt asks the interpreter to abort the running operation.
func (e *Engine) Interrupt(context.Context) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}
	return conn.Notify(MethodInterrupt, nil)
}

func (e *Engine) Evaluate(ctx context.Context, statements string) error {
	return e.call(ctx, MethodEvaluate, StatementsParams{Statements: statements}, nil)
}

func (e *Engine) ReadFile(ctx context.Context, path string) error {
	return e.call(ctx, MethodReadFile, PathParams{Path: path}, nil)
}

func (e *Engine) ReadDataFile(ctx context.Context, path string) error {
	return e.call(ctx, MethodReadDataFile, PathParams{Path: path}, nil)
}

func (e *Engine) Solve(ctx context.Context) error {
	return e.call(ctx, MethodSolve, nil, nil)
}

func (e *Engine) Value(ctx context.Context, expr string) (engine.Value, error) {
	var v engine.Value
	err := e.call(ctx, MethodValue, ExprParams{Expr: expr}, &v)
	return v, err
}

func (e *Engine) LookupEntity(ctx context.Context, kind engine.Kind, name string) (engine.Handle, error) {
	var h engine.Handle
	err := e.call(ctx, MethodLookupEntity, EntityParams{Kind: kind, Name: name}, &h)
	return h, err
}

func (e *Engine) ListEntities(ctx context.Context, kind engine.Kind) ([]engine.Handle, error) {
	var hs []engine.Handle
	err := e.call(ctx, MethodListEntities, EntityParams{Kind: kind}, &hs)
	return hs, err
}

func (e *Engine) Attribute(ctx context.Context, h engine.Handle, attr string, index engine.Tuple) (engine.Value, error) {
	var v engine.Value
	err := e.call(ctx, MethodAttribute, AttributeParams{Handle: h, Attr: attr, Index: index}, &v)
	return v, err
}

func (e *Engine) SetAttribute(ctx context.Context, h engine.Handle, attr string, index engine.Tuple, v engine.Value) error {
	return e.call(ctx, MethodSetAttribute, AttributeParams{Handle: h, Attr: attr, Index: index, Value: &v}, nil)
}

func (e *Engine) Members(ctx context.Context, h engine.Handle, index engine.Tuple) ([]engine.Tuple, error) {
	var members []engine.Tuple
	err := e.call(ctx, MethodMembers, AttributeParams{Handle: h, Index: index}, &members)
	return members, err
}

func (e *Engine) Contains(ctx context.Context, h engine.Handle, index, member engine.Tuple) (bool, error) {
	var ok bool
	err := e.call(ctx, MethodContains, AttributeParams{Handle: h, Index: index, Member: member}, &ok)
	return ok, err
}

func (e *Engine) Query(ctx context.Context, expressions []string) (*engine.RawFrame, error) {
	var f engine.RawFrame
	if err := e.call(ctx, MethodQuery, QueryParams{Expressions: expressions}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (e *Engine) Assign(ctx context.Context, f *engine.RawFrame) error {
	return e.call(ctx, MethodAssign, AssignParams{Frame: f}, nil)
}

func (e *Engine) setOption(ctx context.Context, name, typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return e.call(ctx, MethodSetOption, OptionParams{Name: name, Type: typ, Value: data}, nil)
}

func (e *Engine) SetIntOption(ctx context.Context, name string, v int64) error {
	return e.setOption(ctx, name, "int", v)
}

func (e *Engine) SetFloatOption(ctx context.Context, name string, v float64) error {
	return e.setOption(ctx, name, "float", v)
}

func (e *Engine) SetBoolOption(ctx context.Context, name string, v bool) error {
	return e.setOption(ctx, name, "bool", v)
}

func (e *Engine) SetStringOption(ctx context.Context, name string, v string) error {
	return e.setOption(ctx, name, "string", v)
}

func (e *Engine) Option(ctx context.Context, name string) (string, error) {
	var v string
	err := e.call(ctx, MethodOption, OptionParams{Name: name}, &v)
	return v, err
}

func (e *Engine) Cwd(ctx context.Context) (string, error) {
	var dir string
	err := e.call(ctx, MethodCwd, nil, &dir)
	return dir, err
}

func (e *Engine) SetCwd(ctx context.Context, path string) (string, error) {
	var dir string
	err := e.call(ctx, MethodSetCwd, PathParams{Path: path}, &dir)
	return dir, err
}

func (e *Engine) SetOutputHandler(h engine.OutputHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.out = h
}

func (e *Engine) SetErrorHandler(h engine.ErrorHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.errh = h
}

func (e *Engine) OutputHandler() engine.OutputHandler {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	return e.out
}

func (e *Engine) ErrorHandler() engine.ErrorHandler {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	return e.errh
}

var (
	_ engine.Engine      = (*Engine)(nil)
	_ engine.Interrupter = (*Engine)(nil)
)
