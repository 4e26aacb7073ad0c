package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// Entity is implemented by every entity reference type.
type Entity interface {
	Name() string
	Kind() engine.Kind
	IndexArity() int
	Data(ctx context.Context) (*frame.Frame, error)
}

// entity is the state shared by all reference types: the owning session
// and the handle the engine issued. It holds no values.
type entity struct {
	s *Session
	h engine.Handle
}

// Name returns the entity's name.
func (e entity) Name() string { return e.h.Name }

// Kind returns the entity's kind.
func (e entity) Kind() engine.Kind { return e.h.Kind }

// IndexArity returns the number of indexing dimensions; 0 for scalars.
func (e entity) IndexArity() int { return e.h.IndexArity }

func (e entity) String() string { return fmt.Sprintf("%s %s", e.h.Kind, e.h.Name) }

// Data returns the entity's current values as a frame.
func (e entity) Data(ctx context.Context) (*frame.Frame, error) {
	var f *frame.Frame
	err := e.s.do(ctx, "entity_data", e.h.Name, func(ctx context.Context) error {
		raw, err := e.s.eng.Query(ctx, []string{e.h.Name})
		if err != nil {
			return staleOr(e.h, err)
		}
		f, err = frame.FromQuery(raw)
		return err
	})
	return f, err
}

func (e entity) get(ctx context.Context, attr string, index []engine.Value) (engine.Value, error) {
	var v engine.Value
	err := e.s.do(ctx, "entity_get", e.h.Name+"."+attr, func(ctx context.Context) error {
		var err error
		v, err = e.s.eng.Attribute(ctx, e.h, attr, index)
		return staleOr(e.h, err)
	})
	return v, err
}

func (e entity) num(ctx context.Context, attr string, index []engine.Value) (float64, error) {
	v, err := e.get(ctx, attr, index)
	if err != nil {
		return 0, err
	}
	if v.IsString() {
		return 0, fmt.Errorf("%s.%s%s is not numeric: %s", e.h.Name, attr, engine.Tuple(index), v)
	}
	return v.Float(), nil
}

func (e entity) set(ctx context.Context, attr string, index []engine.Value, v engine.Value) error {
	return e.s.do(ctx, "entity_set", e.h.Name+"."+attr, func(ctx context.Context) error {
		return staleOr(e.h, e.s.eng.SetAttribute(ctx, e.h, attr, index, v))
	})
}

// Variable is a reference to a decision variable.
type Variable struct{ entity }

// Value returns the variable's current value.
func (v *Variable) Value(ctx context.Context, index ...engine.Value) (float64, error) {
	return v.num(ctx, "val", index)
}

// SetValue assigns the variable's current value.
func (v *Variable) SetValue(ctx context.Context, x float64, index ...engine.Value) error {
	return v.set(ctx, "val", index, engine.Num(x))
}

// Bounds returns the lower and upper bound.
func (v *Variable) Bounds(ctx context.Context, index ...engine.Value) (lb, ub float64, err error) {
	if lb, err = v.num(ctx, "lb", index); err != nil {
		return 0, 0, err
	}
	if ub, err = v.num(ctx, "ub", index); err != nil {
		return 0, 0, err
	}
	return lb, ub, nil
}

// SetBounds assigns both bounds.
func (v *Variable) SetBounds(ctx context.Context, lb, ub float64, index ...engine.Value) error {
	if lb > ub {
		return fmt.Errorf("%s: lower bound %g exceeds upper bound %g", v.h.Name, lb, ub)
	}
	if err := v.set(ctx, "lb", index, engine.Num(lb)); err != nil {
		return err
	}
	return v.set(ctx, "ub", index, engine.Num(ub))
}

// ReducedCost returns the reduced cost from the last solve.
func (v *Variable) ReducedCost(ctx context.Context, index ...engine.Value) (float64, error) {
	return v.num(ctx, "rc", index)
}

// Fix fixes the variable at x.
func (v *Variable) Fix(ctx context.Context, x float64, index ...engine.Value) error {
	if err := v.set(ctx, "val", index, engine.Num(x)); err != nil {
		return err
	}
	return v.set(ctx, "fixed", index, engine.Num(1))
}

// Unfix releases a fixed variable.
func (v *Variable) Unfix(ctx context.Context, index ...engine.Value) error {
	return v.set(ctx, "fixed", index, engine.Num(0))
}

// Constraint is a reference to a constraint.
type Constraint struct{ entity }

// Body returns the current value of the constraint body.
func (c *Constraint) Body(ctx context.Context, index ...engine.Value) (float64, error) {
	return c.num(ctx, "body", index)
}

// Dual returns the dual value from the last solve.
func (c *Constraint) Dual(ctx context.Context, index ...engine.Value) (float64, error) {
	return c.num(ctx, "dual", index)
}

// Objective is a reference to an objective.
type Objective struct{ entity }

// Value returns the current objective value.
func (o *Objective) Value(ctx context.Context, index ...engine.Value) (float64, error) {
	return o.num(ctx, "val", index)
}

// Sense returns "minimize" or "maximize".
func (o *Objective) Sense(ctx context.Context) (string, error) {
	v, err := o.get(ctx, "sense", nil)
	if err != nil {
		return "", err
	}
	return v.Text(), nil
}

// Set is a reference to a set.
type Set struct{ entity }

// Members returns the members of the set, or of one instance of an
// indexed collection of sets.
func (st *Set) Members(ctx context.Context, index ...engine.Value) ([]engine.Tuple, error) {
	var out []engine.Tuple
	err := st.s.do(ctx, "set_members", st.h.Name, func(ctx context.Context) error {
		var err error
		out, err = st.s.eng.Members(ctx, st.h, index)
		return staleOr(st.h, err)
	})
	return out, err
}

// Contains reports whether member belongs to the set.
func (st *Set) Contains(ctx context.Context, member engine.Tuple, index ...engine.Value) (bool, error) {
	var ok bool
	err := st.s.do(ctx, "set_contains", st.h.Name, func(ctx context.Context) error {
		var err error
		ok, err = st.s.eng.Contains(ctx, st.h, index, member)
		return staleOr(st.h, err)
	})
	return ok, err
}

// Size returns the number of members.
func (st *Set) Size(ctx context.Context, index ...engine.Value) (int, error) {
	members, err := st.Members(ctx, index...)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// Parameter is a reference to a parameter.
type Parameter struct{ entity }

// Value returns the parameter's value, a number or a string.
func (p *Parameter) Value(ctx context.Context, index ...engine.Value) (engine.Value, error) {
	return p.get(ctx, "val", index)
}

// SetValue assigns the parameter. v may be any Go number or a string.
func (p *Parameter) SetValue(ctx context.Context, v any, index ...engine.Value) error {
	val, err := engine.ValueOf(v)
	if err != nil {
		return fmt.Errorf("%s: %w", p.h.Name, err)
	}
	return p.set(ctx, "val", index, val)
}

// --- Lookup ---

// Variable returns the named variable.
func (s *Session) Variable(ctx context.Context, name string) (*Variable, error) {
	return s.variables.Get(ctx, name)
}

// Constraint returns the named constraint.
func (s *Session) Constraint(ctx context.Context, name string) (*Constraint, error) {
	return s.constraints.Get(ctx, name)
}

// Objective returns the named objective.
func (s *Session) Objective(ctx context.Context, name string) (*Objective, error) {
	return s.objectives.Get(ctx, name)
}

// Set returns the named set.
func (s *Session) Set(ctx context.Context, name string) (*Set, error) {
	return s.sets.Get(ctx, name)
}

// Parameter returns the named parameter.
func (s *Session) Parameter(ctx context.Context, name string) (*Parameter, error) {
	return s.parameters.Get(ctx, name)
}

// Variables returns the collection of all variables.
func (s *Session) Variables() *Collection[*Variable] { return s.variables }

// Constraints returns the collection of all constraints.
func (s *Session) Constraints() *Collection[*Constraint] { return s.constraints }

// Objectives returns the collection of all objectives.
func (s *Session) Objectives() *Collection[*Objective] { return s.objectives }

// Sets returns the collection of all sets.
func (s *Session) Sets() *Collection[*Set] { return s.sets }

// Parameters returns the collection of all parameters.
func (s *Session) Parameters() *Collection[*Parameter] { return s.parameters }

// Names returns the names of all entities of one kind in engine order.
func (s *Session) Names(ctx context.Context, kind engine.Kind) ([]string, error) {
	switch kind {
	case engine.KindVariable:
		return s.variables.Names(ctx)
	case engine.KindConstraint:
		return s.constraints.Names(ctx)
	case engine.KindObjective:
		return s.objectives.Names(ctx)
	case engine.KindSet:
		return s.sets.Names(ctx)
	case engine.KindParameter:
		return s.parameters.Names(ctx)
	default:
		return nil, fmt.Errorf("unknown entity kind %d", int(kind))
	}
}

// Entity looks a name up across every kind, in the order of
// engine.Kinds, and returns the first match.
func (s *Session) Entity(ctx context.Context, name string) (Entity, error) {
	return s.lookupAny(ctx, name)
}

func (s *Session) lookupAny(ctx context.Context, name string) (Entity, error) {
	var found Entity
	err := s.do(ctx, "lookup", name, func(ctx context.Context) error {
		for _, kind := range engine.Kinds() {
			h, err := s.eng.LookupEntity(ctx, kind, name)
			if errors.Is(err, engine.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found = wrap(entity{s: s, h: h})
			return nil
		}
		return &NotFoundError{Any: true, Name: name}
	})
	return found, err
}

func wrap(e entity) Entity {
	switch e.h.Kind {
	case engine.KindVariable:
		return &Variable{e}
	case engine.KindConstraint:
		return &Constraint{e}
	case engine.KindObjective:
		return &Objective{e}
	case engine.KindSet:
		return &Set{e}
	default:
		return &Parameter{e}
	}
}
