package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

type builtinFunc func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// Builtins returns the session functions predeclared for scripts:
//
//	eval(statements)          read(path)         read_data(path)
//	solve()                   reset()            display(*exprs)
//	option(name)              set_option(name, value)
//	value(expr)               entities(kind="variable")
//	variable(name, *index)    data(*exprs)       cd(path=None)
func Builtins(sess *session.Session) starlark.StringDict {
	b := &builtins{sess: sess}
	fns := map[string]builtinFunc{
		"eval":       b.eval,
		"read":       b.read,
		"read_data":  b.readData,
		"solve":      b.solve,
		"reset":      b.reset,
		"display":    b.display,
		"option":     b.option,
		"set_option": b.setOption,
		"value":      b.value,
		"entities":   b.entities,
		"variable":   b.variable,
		"data":       b.data,
		"cd":         b.cd,
	}
	out := make(starlark.StringDict, len(fns))
	for name, fn := range fns {
		out[name] = starlark.NewBuiltin(name, fn)
	}
	return out
}

type builtins struct {
	sess *session.Session
}

func (b *builtins) eval(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var statements string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &statements); err != nil {
		return nil, err
	}
	return starlark.None, b.sess.Eval(contextOf(thread), statements)
}

func (b *builtins) read(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	return starlark.None, b.sess.Read(contextOf(thread), path)
}

func (b *builtins) readData(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	return starlark.None, b.sess.ReadData(contextOf(thread), path)
}

func (b *builtins) solve(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.None, b.sess.Solve(contextOf(thread))
}

func (b *builtins) reset(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.None, b.sess.Reset(contextOf(thread))
}

func (b *builtins) display(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	exprs, err := stringArgs(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.sess.Display(contextOf(thread), exprs...)
}

// option returns None for options the interpreter does not know.
func (b *builtins) option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	v, ok, err := b.sess.Option(contextOf(thread), name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return starlark.None, nil
	}
	return GoToStarlark(v.Any())
}

func (b *builtins) setOption(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "value", &value); err != nil {
		return nil, err
	}
	v, err := ToGo(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return starlark.None, b.sess.SetOptionValue(contextOf(thread), name, v)
}

func (b *builtins) value(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var expr string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "expr", &expr); err != nil {
		return nil, err
	}
	v, err := b.sess.Value(contextOf(thread), expr)
	if err != nil {
		return nil, err
	}
	return ValueToStarlark(v), nil
}

func (b *builtins) entities(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	kindName := engine.KindVariable.String()
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "kind?", &kindName); err != nil {
		return nil, err
	}
	kind, err := engine.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	names, err := b.sess.Names(contextOf(thread), kind)
	if err != nil {
		return nil, err
	}
	return GoToStarlark(names)
}

// variable returns a struct with the variable's value, bounds and
// reduced cost at the given index.
func (b *builtins) variable(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing argument for name", fn.Name())
	}
	name, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: for parameter name: got %s, want string", fn.Name(), args[0].Type())
	}
	index, err := tupleFromStarlark(args[1:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}

	ctx := contextOf(thread)
	v, err := b.sess.Variable(ctx, name)
	if err != nil {
		return nil, err
	}
	val, err := v.Value(ctx, index...)
	if err != nil {
		return nil, err
	}
	lb, ub, err := v.Bounds(ctx, index...)
	if err != nil {
		return nil, err
	}
	rc, err := v.ReducedCost(ctx, index...)
	if err != nil {
		return nil, err
	}
	return starlarkstruct.FromStringDict(starlark.String("variable"), starlark.StringDict{
		"name":  starlark.String(name),
		"value": starlark.Float(val),
		"lb":    starlark.Float(lb),
		"ub":    starlark.Float(ub),
		"rc":    starlark.Float(rc),
	}), nil
}

// data returns the expressions' values as a list of row dicts.
func (b *builtins) data(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	exprs, err := stringArgs(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	f, err := b.sess.Data(contextOf(thread), exprs...)
	if err != nil {
		return nil, err
	}
	return FrameToStarlark(f), nil
}

// cd returns the working directory, changing it first when path is given.
func (b *builtins) cd(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path?", &path); err != nil {
		return nil, err
	}
	dir, err := b.sess.Cd(contextOf(thread), path)
	if err != nil {
		return nil, err
	}
	return starlark.String(dir), nil
}

func stringArgs(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]string, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d: got %s, want string", fn.Name(), i+1, a.Type())
		}
		out[i] = s
	}
	return out, nil
}
