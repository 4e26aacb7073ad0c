// Package enginetest provides an in-memory engine for tests.
//
// The engine keeps a small entity table, option store and working
// directory, and understands just enough statement syntax (declarations,
// option, display, reset) to drive the facade in tests. It is not an
// interpreter: anything it does not recognize is reported as a syntax
// error diagnostic through the installed error handler.
package enginetest

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Entity is an entity stored in the in-memory engine.
type Entity struct {
	Kind  engine.Kind
	Name  string
	Arity int

	token   uint64
	attrs   map[string]map[string]engine.Value
	order   []string
	index   map[string]engine.Tuple
	members map[string][]engine.Tuple
}

func (e *Entity) handle() engine.Handle {
	return engine.Handle{Kind: e.Kind, Name: e.Name, IndexArity: e.Arity, Token: e.token}
}

func (e *Entity) touch(index engine.Tuple) string {
	key := index.Key()
	if _, ok := e.index[key]; !ok {
		e.index[key] = append(engine.Tuple(nil), index...)
		e.order = append(e.order, key)
	}
	return key
}

// Engine is an in-memory engine.Engine.
type Engine struct {
	// OnEvaluate replaces the built-in statement handling when set.
	OnEvaluate func(ctx context.Context, e *Engine, statements string) error
	// OnSolve is called by Solve when set.
	OnSolve func(ctx context.Context, e *Engine) error
	// StartErr is returned by Start when set.
	StartErr error

	mu         sync.Mutex
	running    bool
	config     engine.Config
	entities   []*Entity
	options    map[string]string
	cwd        string
	out        engine.OutputHandler
	errh       engine.ErrorHandler
	nextToken  uint64
	calls      map[string]int
	lists      map[engine.Kind]int
	lastSetter string
	statements []string
	interrupts int
}

// New returns a stopped in-memory engine with default options.
func New() *Engine {
	return &Engine{
		options: map[string]string{
			"presolve":          "10",
			"solver":            "minos",
			"display_1col":      "20",
			"relax_integrality": "0",
		},
		cwd:   "/",
		calls: make(map[string]int),
		lists: make(map[engine.Kind]int),
	}
}

var (
	_ engine.Engine      = (*Engine)(nil)
	_ engine.Interrupter = (*Engine)(nil)
)

func (e *Engine) record(op string) {
	e.mu.Lock()
	e.calls[op]++
	e.mu.Unlock()
}

// Calls returns how many times an operation was invoked.
// Operation names are the engine.Engine method names.
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// ListCalls returns how many times ListEntities was called for kind.
func (e *Engine) ListCalls(kind engine.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lists[kind]
}

// LastOptionSetter returns which typed setter handled the last option
// write: "int", "float", "bool" or "string".
func (e *Engine) LastOptionSetter() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSetter
}

// Statements returns every statement string passed to Evaluate.
func (e *Engine) Statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.statements...)
}

// Interrupts returns the number of Interrupt calls.
func (e *Engine) Interrupts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupts
}

// Config returns the configuration Start was called with.
func (e *Engine) Config() engine.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Declare adds (or redeclares) an entity. Redeclaring replaces the
// previous entity, so handles issued for it become stale.
func (e *Engine) Declare(kind engine.Kind, name string, arity int) *Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.declareLocked(kind, name, arity)
}

func (e *Engine) declareLocked(kind engine.Kind, name string, arity int) *Entity {
	for i, ent := range e.entities {
		if ent.Name == name {
			e.entities = append(e.entities[:i], e.entities[i+1:]...)
			break
		}
	}
	e.nextToken++
	ent := &Entity{
		Kind:    kind,
		Name:    name,
		Arity:   arity,
		token:   e.nextToken,
		attrs:   make(map[string]map[string]engine.Value),
		index:   make(map[string]engine.Tuple),
		members: make(map[string][]engine.Tuple),
	}
	e.entities = append(e.entities, ent)
	return ent
}

// Remove deletes an entity, leaving any issued handle stale.
func (e *Engine) Remove(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, ent := range e.entities {
		if ent.Name == name {
			e.entities = append(e.entities[:i], e.entities[i+1:]...)
			return
		}
	}
}

// Put stores an attribute of an entity instance directly.
func (e *Engine) Put(name, attr string, index engine.Tuple, v engine.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.byName(name)
	if ent == nil {
		return fmt.Errorf("entity %s: %w", name, engine.ErrNotFound)
	}
	e.putLocked(ent, attr, index, v)
	return nil
}

func (e *Engine) putLocked(ent *Entity, attr string, index engine.Tuple, v engine.Value) {
	key := ent.touch(index)
	if ent.attrs[attr] == nil {
		ent.attrs[attr] = make(map[string]engine.Value)
	}
	ent.attrs[attr][key] = v
}

// PutMembers stores the members of a set instance directly.
func (e *Engine) PutMembers(name string, index engine.Tuple, members ...engine.Tuple) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.byName(name)
	if ent == nil || ent.Kind != engine.KindSet {
		return fmt.Errorf("set %s: %w", name, engine.ErrNotFound)
	}
	key := ent.touch(index)
	ent.members[key] = append([]engine.Tuple(nil), members...)
	return nil
}

// Report delivers a diagnostic to the installed error handler.
func (e *Engine) Report(d *engine.Diagnostic) error {
	e.mu.Lock()
	h := e.errh
	e.mu.Unlock()
	return engine.Dispatch(h, d)
}

// Emit delivers a block of output to the installed output handler.
func (e *Engine) Emit(kind engine.OutputKind, msg string) {
	e.mu.Lock()
	h := e.out
	e.mu.Unlock()
	if h != nil {
		h.HandleOutput(kind, msg)
	}
}

func (e *Engine) byName(name string) *Entity {
	for _, ent := range e.entities {
		if ent.Name == name {
			return ent
		}
	}
	return nil
}

func (e *Engine) byHandle(h engine.Handle) (*Entity, error) {
	for _, ent := range e.entities {
		if ent.token == h.Token && ent.Name == h.Name {
			return ent, nil
		}
	}
	return nil, fmt.Errorf("entity %s: %w", h.Name, engine.ErrNotFound)
}

// --- Lifecycle ---

// Start implements engine.Lifecycle.
func (e *Engine) Start(_ context.Context, cfg engine.Config) error {
	e.record("Start")
	if e.StartErr != nil {
		return e.StartErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
	e.config = cfg
	if cfg.Dir != "" {
		e.cwd = cfg.Dir
	}
	return nil
}

// Close implements engine.Lifecycle.
func (e *Engine) Close() error {
	e.record("Close")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return nil
}

// IsRunning implements engine.Lifecycle.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// --- Executor ---

// Evaluate implements engine.Executor.
func (e *Engine) Evaluate(ctx context.Context, statements string) error {
	e.record("Evaluate")
	e.mu.Lock()
	e.statements = append(e.statements, statements)
	hook := e.OnEvaluate
	e.mu.Unlock()

	if hook != nil {
		return hook(ctx, e, statements)
	}
	return e.interpret(statements, false)
}

// ReadFile implements engine.Executor by interpreting the file contents.
func (e *Engine) ReadFile(_ context.Context, path string) error {
	e.record("ReadFile")
	content, err := os.ReadFile(e.resolve(path))
	if err != nil {
		return e.Report(&engine.Diagnostic{Severity: engine.SeverityError, Message: fmt.Sprintf("can't open %s", path)})
	}
	return e.interpret(string(content), false)
}

// ReadDataFile implements engine.Executor by interpreting the file in data mode.
func (e *Engine) ReadDataFile(_ context.Context, path string) error {
	e.record("ReadDataFile")
	content, err := os.ReadFile(e.resolve(path))
	if err != nil {
		return e.Report(&engine.Diagnostic{Severity: engine.SeverityError, Message: fmt.Sprintf("can't open %s", path)})
	}
	return e.interpret(string(content), true)
}

func (e *Engine) resolve(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.TrimSuffix(e.cwd, "/") + "/" + path
}

// Solve implements engine.Executor.
func (e *Engine) Solve(ctx context.Context) error {
	e.record("Solve")
	e.mu.Lock()
	hook := e.OnSolve
	e.mu.Unlock()
	if hook != nil {
		return hook(ctx, e)
	}
	e.Emit(engine.OutputSolve, "solved")
	return nil
}

// Value implements engine.Executor. Expressions may be numeric literals,
// quoted strings or scalar entity names (optionally with a suffix).
func (e *Engine) Value(_ context.Context, expr string) (engine.Value, error) {
	e.record("Value")
	expr = strings.TrimSpace(expr)
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return engine.Num(f), nil
	}
	if len(expr) >= 2 && (expr[0] == '"' || expr[0] == '\'') && expr[len(expr)-1] == expr[0] {
		return engine.Str(expr[1 : len(expr)-1]), nil
	}

	name, attr := splitSuffix(expr)
	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.byName(name)
	if ent == nil {
		return engine.Value{}, fmt.Errorf("%s is not defined: %w", name, engine.ErrNotFound)
	}
	return attrValue(ent, attr, nil), nil
}

func splitSuffix(expr string) (name, attr string) {
	if i := strings.LastIndexByte(expr, '.'); i > 0 {
		return expr[:i], expr[i+1:]
	}
	return expr, "val"
}

func attrValue(ent *Entity, attr string, index engine.Tuple) engine.Value {
	if vals, ok := ent.attrs[attr]; ok {
		if v, ok := vals[index.Key()]; ok {
			return v
		}
	}
	switch attr {
	case "lb":
		return engine.Num(math.Inf(-1))
	case "ub":
		return engine.Num(math.Inf(1))
	}
	return engine.Num(0)
}

// --- Entities ---

// LookupEntity implements engine.Entities.
func (e *Engine) LookupEntity(_ context.Context, kind engine.Kind, name string) (engine.Handle, error) {
	e.record("LookupEntity")
	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.byName(name)
	if ent == nil || ent.Kind != kind {
		return engine.Handle{}, fmt.Errorf("%s %s: %w", kind, name, engine.ErrNotFound)
	}
	return ent.handle(), nil
}

// ListEntities implements engine.Entities.
func (e *Engine) ListEntities(_ context.Context, kind engine.Kind) ([]engine.Handle, error) {
	e.record("ListEntities")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lists[kind]++
	var out []engine.Handle
	for _, ent := range e.entities {
		if ent.Kind == kind {
			out = append(out, ent.handle())
		}
	}
	return out, nil
}

// Attribute implements engine.Entities.
func (e *Engine) Attribute(_ context.Context, h engine.Handle, attr string, index engine.Tuple) (engine.Value, error) {
	e.record("Attribute")
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.byHandle(h)
	if err != nil {
		return engine.Value{}, err
	}
	if len(index) != ent.Arity {
		return engine.Value{}, fmt.Errorf("%s expects %d subscripts, got %d", ent.Name, ent.Arity, len(index))
	}
	return attrValue(ent, attr, index), nil
}

// SetAttribute implements engine.Entities.
func (e *Engine) SetAttribute(_ context.Context, h engine.Handle, attr string, index engine.Tuple, v engine.Value) error {
	e.record("SetAttribute")
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.byHandle(h)
	if err != nil {
		return err
	}
	if len(index) != ent.Arity {
		return fmt.Errorf("%s expects %d subscripts, got %d", ent.Name, ent.Arity, len(index))
	}
	e.putLocked(ent, attr, index, v)
	return nil
}

// Members implements engine.Entities.
func (e *Engine) Members(_ context.Context, h engine.Handle, index engine.Tuple) ([]engine.Tuple, error) {
	e.record("Members")
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.byHandle(h)
	if err != nil {
		return nil, err
	}
	return append([]engine.Tuple(nil), ent.members[index.Key()]...), nil
}

// Contains implements engine.Entities.
func (e *Engine) Contains(_ context.Context, h engine.Handle, index engine.Tuple, member engine.Tuple) (bool, error) {
	e.record("Contains")
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.byHandle(h)
	if err != nil {
		return false, err
	}
	for _, m := range ent.members[index.Key()] {
		if m.Equal(member) {
			return true, nil
		}
	}
	return false, nil
}

// --- DataExchange ---

// Query implements engine.DataExchange. Each expression is an entity name,
// optionally with a suffix; all of them must share the same indexing.
func (e *Engine) Query(_ context.Context, expressions []string) (*engine.RawFrame, error) {
	e.record("Query")
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(expressions) == 0 {
		return nil, fmt.Errorf("no expressions to display")
	}

	type column struct {
		ent  *Entity
		attr string
	}
	cols := make([]column, 0, len(expressions))
	for _, expr := range expressions {
		name, attr := splitSuffix(strings.TrimSpace(expr))
		ent := e.byName(name)
		if ent == nil {
			return nil, fmt.Errorf("%s is not defined: %w", name, engine.ErrNotFound)
		}
		cols = append(cols, column{ent: ent, attr: attr})
	}

	first := cols[0].ent
	for _, c := range cols[1:] {
		if c.ent.Arity != first.Arity {
			return nil, fmt.Errorf("%s and %s are not indexed over the same set", first.Name, c.ent.Name)
		}
	}

	raw := &engine.RawFrame{}
	for i := 0; i < first.Arity; i++ {
		raw.IndexColumns = append(raw.IndexColumns, fmt.Sprintf("index%d", i))
	}
	for _, expr := range expressions {
		raw.ValueColumns = append(raw.ValueColumns, strings.TrimSpace(expr))
	}

	keys := first.order
	if first.Arity == 0 {
		keys = []string{engine.Tuple(nil).Key()}
	}
	for _, key := range keys {
		index := first.index[key]
		row := append([]engine.Value(nil), index...)
		for _, c := range cols {
			row = append(row, attrValue(c.ent, c.attr, index))
		}
		raw.Rows = append(raw.Rows, row)
	}
	return raw, nil
}

// Assign implements engine.DataExchange.
func (e *Engine) Assign(_ context.Context, frame *engine.RawFrame) error {
	e.record("Assign")
	e.mu.Lock()
	defer e.mu.Unlock()

	ni := len(frame.IndexColumns)
	targets := make([]*Entity, len(frame.ValueColumns))
	attrs := make([]string, len(frame.ValueColumns))
	for i, col := range frame.ValueColumns {
		name, attr := splitSuffix(col)
		ent := e.byName(name)
		if ent == nil {
			return fmt.Errorf("%s is not defined: %w", name, engine.ErrNotFound)
		}
		if ent.Arity != ni {
			return fmt.Errorf("%s expects %d subscripts, got %d", name, ent.Arity, ni)
		}
		targets[i], attrs[i] = ent, attr
	}
	for _, row := range frame.Rows {
		if len(row) != frame.Width() {
			return fmt.Errorf("row has %d values, want %d", len(row), frame.Width())
		}
		index := engine.Tuple(row[:ni])
		for i, ent := range targets {
			e.putLocked(ent, attrs[i], index, row[ni+i])
		}
	}
	return nil
}

// --- Options ---

func (e *Engine) setOption(setter, name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSetter = setter
	e.options[name] = value
	return nil
}

// SetIntOption implements engine.Options.
func (e *Engine) SetIntOption(_ context.Context, name string, v int64) error {
	e.record("SetIntOption")
	return e.setOption("int", name, strconv.FormatInt(v, 10))
}

// SetFloatOption implements engine.Options.
func (e *Engine) SetFloatOption(_ context.Context, name string, v float64) error {
	e.record("SetFloatOption")
	return e.setOption("float", name, strconv.FormatFloat(v, 'g', -1, 64))
}

// SetBoolOption implements engine.Options. Booleans are stored as 0/1.
func (e *Engine) SetBoolOption(_ context.Context, name string, v bool) error {
	e.record("SetBoolOption")
	s := "0"
	if v {
		s = "1"
	}
	return e.setOption("bool", name, s)
}

// SetStringOption implements engine.Options.
func (e *Engine) SetStringOption(_ context.Context, name string, v string) error {
	e.record("SetStringOption")
	return e.setOption("string", name, v)
}

// Option implements engine.Options.
func (e *Engine) Option(_ context.Context, name string) (string, error) {
	e.record("Option")
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.options[name]
	if !ok {
		return "", fmt.Errorf("option %s: %w", name, engine.ErrNotFound)
	}
	return v, nil
}

// --- Handlers ---

// SetOutputHandler implements engine.Handlers.
func (e *Engine) SetOutputHandler(h engine.OutputHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out = h
}

// SetErrorHandler implements engine.Handlers.
func (e *Engine) SetErrorHandler(h engine.ErrorHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errh = h
}

// OutputHandler implements engine.Handlers.
func (e *Engine) OutputHandler() engine.OutputHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

// ErrorHandler implements engine.Handlers.
func (e *Engine) ErrorHandler() engine.ErrorHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errh
}

// --- Workdir ---

// Cwd implements engine.Workdir.
func (e *Engine) Cwd(_ context.Context) (string, error) {
	e.record("Cwd")
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cwd, nil
}

// SetCwd implements engine.Workdir.
func (e *Engine) SetCwd(_ context.Context, path string) (string, error) {
	e.record("SetCwd")
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.HasPrefix(path, "/") {
		e.cwd = path
	} else {
		e.cwd = strings.TrimSuffix(e.cwd, "/") + "/" + path
	}
	return e.cwd, nil
}

// Interrupt implements engine.Interrupter.
func (e *Engine) Interrupt(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interrupts++
	return nil
}
