package session

import (
	"context"
	"iter"
	"sync"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Collection is a name-addressable view of every entity of one kind.
//
// It is either empty or populated. An empty collection fills itself with
// one ListEntities call on first access; it stays populated until the
// session runs a declaration-mutating operation, which empties it again.
// The view caches which entities exist, never their values.
type Collection[T Entity] struct {
	s    *Session
	kind engine.Kind
	wrap func(entity) T

	mu        sync.RWMutex
	populated bool
	cache     map[string]T
	order     []string
}

func newCollection[T Entity](s *Session, kind engine.Kind, wrap func(entity) T) *Collection[T] {
	return &Collection[T]{s: s, kind: kind, wrap: wrap}
}

// Kind returns the kind of entity the collection holds.
func (c *Collection[T]) Kind() engine.Kind { return c.kind }

// Populated reports whether the collection currently holds a listing.
func (c *Collection[T]) Populated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.populated
}

// Invalidate empties the collection. Invalidating an empty collection
// does nothing.
func (c *Collection[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.populated = false
	c.cache = nil
	c.order = nil
}

// snapshot returns the current listing, populating it first if needed.
func (c *Collection[T]) snapshot(ctx context.Context) ([]string, map[string]T, error) {
	if err := c.s.check(); err != nil {
		return nil, nil, err
	}

	c.mu.RLock()
	if c.populated {
		order, cache := c.order, c.cache
		c.mu.RUnlock()
		return order, cache, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.populated {
		return c.order, c.cache, nil
	}

	var handles []engine.Handle
	err := c.s.do(ctx, "list_entities", c.kind.String(), func(ctx context.Context) error {
		var err error
		handles, err = c.s.eng.ListEntities(ctx, c.kind)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	cache := make(map[string]T, len(handles))
	order := make([]string, 0, len(handles))
	for _, h := range handles {
		if _, dup := cache[h.Name]; dup {
			continue
		}
		cache[h.Name] = c.wrap(entity{s: c.s, h: h})
		order = append(order, h.Name)
	}
	c.cache, c.order, c.populated = cache, order, true
	return order, cache, nil
}

// Get returns the named entity.
func (c *Collection[T]) Get(ctx context.Context, name string) (T, error) {
	var zero T
	_, cache, err := c.snapshot(ctx)
	if err != nil {
		return zero, err
	}
	ent, ok := cache[name]
	if !ok {
		return zero, &NotFoundError{Kind: c.kind, Name: name}
	}
	return ent, nil
}

// Iter returns the entities in the order the engine reported them. The
// sequence iterates over the listing current at the time of the call and
// may be ranged over more than once.
func (c *Collection[T]) Iter(ctx context.Context) (iter.Seq2[string, T], error) {
	order, cache, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(string, T) bool) {
		for _, name := range order {
			if !yield(name, cache[name]) {
				return
			}
		}
	}, nil
}

// Names returns the entity names in engine order.
func (c *Collection[T]) Names(ctx context.Context) ([]string, error) {
	order, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), order...), nil
}

// Len returns the number of entities.
func (c *Collection[T]) Len(ctx context.Context) (int, error) {
	order, _, err := c.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(order), nil
}
