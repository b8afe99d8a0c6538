package store

import (
	"context"
)

// Patch computes the optimistic value of one item.  present reports whether
// the item currently exists; returning keep=false removes it.  Patches are
// re-run whenever the item's confirmed value changes, so they must be pure.
type Patch[T any] func(cur T, present bool) (next T, keep bool)

// Update adapts a patch that only edits existing items.
func Update[T any](fn func(T) T) Patch[T] {
	return func(cur T, present bool) (T, bool) {
		if !present {
			return cur, false
		}
		return fn(cur), true
	}
}

// chain holds the confirmed value of one item and the optimistic patches
// still waiting for the backend, oldest first.  The visible item is always
// the confirmed value with every pending patch applied, so resolving one
// mutation never discards the effect of another one still in flight.
type chain[T any] struct {
	base    T
	present bool
	index   int // position of base in items, for restoring removed items
	patches []*Pending[T]
}

// Pending is one optimistic mutation awaiting the backend's answer.  Exactly
// one of Commit, Confirm or Rollback should be called; later calls are
// no-ops.
type Pending[T any] struct {
	s     *Store[T]
	id    string
	patch Patch[T]
	done  bool
}

// Begin applies patch to the item id immediately and returns the handle used
// to reconcile it.  The rollback point is the visible state at the time of
// the call, including earlier mutations that have not resolved yet.
func (s *Store[T]) Begin(id string, patch Patch[T]) (*Pending[T], error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	c, ok := s.pending[id]
	if !ok {
		c = &chain[T]{index: s.indexLocked(id)}
		if c.index >= 0 {
			c.base, c.present = s.clone(s.items[c.index]), true
		}
		s.pending[id] = c
	}
	p := &Pending[T]{s: s, id: id, patch: patch}
	c.patches = append(c.patches, p)
	s.applyLocked(id, c)
	s.publishLocked()
	return p, nil
}

// Commit replaces the confirmed value with the server's authoritative item
// and drops this mutation from the pending set.
func (p *Pending[T]) Commit(server T) {
	p.resolve(func(c *chain[T]) {
		c.base, c.present = p.s.clone(server), true
	})
}

// Confirm accepts the optimistic effect as confirmed, for endpoints that
// answer without returning the item.
func (p *Pending[T]) Confirm() {
	p.resolve(func(c *chain[T]) {
		c.base, c.present = p.patch(p.s.clone(c.base), c.present)
	})
}

// Rollback discards this mutation's effect.
func (p *Pending[T]) Rollback() {
	p.resolve(func(*chain[T]) {})
}

// Base returns the confirmed value the patch is applied to.
func (p *Pending[T]) Base() (T, bool) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if c, ok := p.s.pending[p.id]; ok {
		return p.s.clone(c.base), c.present
	}
	var zero T
	return zero, false
}

func (p *Pending[T]) resolve(update func(*chain[T])) {
	s := p.s
	s.mu.Lock()
	if p.done || s.disposed {
		p.done = true
		s.mu.Unlock()
		return
	}
	p.done = true
	c := s.pending[p.id]
	update(c)
	for i, q := range c.patches {
		if q == p {
			c.patches = append(c.patches[:i], c.patches[i+1:]...)
			break
		}
	}
	s.applyLocked(p.id, c)
	if len(c.patches) == 0 {
		delete(s.pending, p.id)
	}
	s.publishLocked()
}

// Mutate runs the optimistic pattern for one item: apply patch, call
// remote, then commit the server's item or roll back and surface the error.
func (s *Store[T]) Mutate(ctx context.Context, id string, patch Patch[T], remote func(context.Context) (T, error)) (T, error) {
	p, err := s.Begin(id, patch)
	if err != nil {
		var zero T
		return zero, err
	}
	item, err := remote(ctx)
	if err != nil {
		p.Rollback()
		s.SetErr(err)
		var zero T
		return zero, err
	}
	p.Commit(item)
	return item, nil
}

// applyLocked recomputes the visible value of id from its chain and places
// it in items.
func (s *Store[T]) applyLocked(id string, c *chain[T]) {
	v, present := s.clone(c.base), c.present
	for _, p := range c.patches {
		v, present = p.patch(v, present)
	}

	i := s.indexLocked(id)
	switch {
	case present && i >= 0:
		s.items[i] = v
	case present:
		at := len(s.items)
		if c.present && c.index >= 0 && c.index < at {
			at = c.index
		}
		s.items = append(s.items, v)
		copy(s.items[at+1:], s.items[at:])
		s.items[at] = v
	case i >= 0:
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

// rebaseLocked re-anchors pending chains on freshly fetched items so that
// in-flight optimistic effects survive a refresh.
func (s *Store[T]) rebaseLocked() {
	for id, c := range s.pending {
		c.index = s.indexLocked(id)
		if c.index >= 0 {
			c.base, c.present = s.clone(s.items[c.index]), true
		} else {
			var zero T
			c.base, c.present = zero, false
		}
		s.applyLocked(id, c)
	}
}
