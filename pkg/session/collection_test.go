package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

func TestCollectionPopulatesOnce(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindConstraint, "supply", 1)
	eng.Declare(engine.KindConstraint, "demand", 1)

	cons := s.Constraints()
	assert.False(t, cons.Populated())
	assert.Equal(t, engine.KindConstraint, cons.Kind())

	c, err := cons.Get(ctx, "demand")
	require.NoError(t, err)
	assert.Equal(t, "demand", c.Name())
	assert.Equal(t, 1, c.IndexArity())
	assert.True(t, cons.Populated())

	_, err = cons.Get(ctx, "supply")
	require.NoError(t, err)
	n, err := cons.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 1, eng.ListCalls(engine.KindConstraint))
	assert.Zero(t, eng.Calls("LookupEntity"))
}

func TestCollectionNotFound(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindVariable, "x", 0)

	_, err := s.Parameters().Get(ctx, "x")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, engine.KindParameter, nf.Kind)
	assert.Equal(t, "x", nf.Name)
	assert.Equal(t, `parameter "x" not found`, nf.Error())
}

// After Invalidate the next iteration lists the engine again, so entities
// removed behind the collection's back are not served.
func TestInvalidateThenIterRefetches(t *testing.T) {
	for _, kind := range engine.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			s, eng := newTestSession(t)
			eng.Declare(kind, "a", 0)
			eng.Declare(kind, "b", 0)

			names := collectNames(t, s, kind)
			assert.Equal(t, []string{"a", "b"}, names)

			eng.Remove("a")
			eng.Declare(kind, "c", 0)

			// Still populated: the cached listing is served.
			assert.Equal(t, []string{"a", "b"}, collectNames(t, s, kind))

			invalidate(s, kind)
			invalidate(s, kind)
			assert.Equal(t, []string{"b", "c"}, collectNames(t, s, kind))
			assert.Equal(t, 2, eng.ListCalls(kind))
		})
	}
}

func collectNames(t *testing.T, s *Session, kind engine.Kind) []string {
	t.Helper()
	ctx := context.Background()
	var names []string
	add := func(name string) { names = append(names, name) }
	var err error
	switch kind {
	case engine.KindVariable:
		err = rangeNames(ctx, s.Variables(), add)
	case engine.KindConstraint:
		err = rangeNames(ctx, s.Constraints(), add)
	case engine.KindObjective:
		err = rangeNames(ctx, s.Objectives(), add)
	case engine.KindSet:
		err = rangeNames(ctx, s.Sets(), add)
	case engine.KindParameter:
		err = rangeNames(ctx, s.Parameters(), add)
	}
	require.NoError(t, err)
	return names
}

func rangeNames[T Entity](ctx context.Context, c *Collection[T], fn func(string)) error {
	seq, err := c.Iter(ctx)
	if err != nil {
		return err
	}
	for name, ent := range seq {
		if ent.Name() != name {
			panic("name mismatch")
		}
		fn(name)
	}
	return nil
}

func invalidate(s *Session, kind engine.Kind) {
	switch kind {
	case engine.KindVariable:
		s.Variables().Invalidate()
	case engine.KindConstraint:
		s.Constraints().Invalidate()
	case engine.KindObjective:
		s.Objectives().Invalidate()
	case engine.KindSet:
		s.Sets().Invalidate()
	case engine.KindParameter:
		s.Parameters().Invalidate()
	}
}

func TestIterIsRestartableAndStoppable(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	for _, name := range []string{"p", "q", "r"} {
		eng.Declare(engine.KindParameter, name, 0)
	}

	seq, err := s.Parameters().Iter(ctx)
	require.NoError(t, err)

	var first []string
	for name := range seq {
		first = append(first, name)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"p", "q"}, first)

	var second []string
	for name := range seq {
		second = append(second, name)
	}
	assert.Equal(t, []string{"p", "q", "r"}, second)
}

func TestCollectionConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	eng.Declare(engine.KindVariable, "x", 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				s.Variables().Invalidate()
				return
			}
			_, err := s.Variable(ctx, "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
