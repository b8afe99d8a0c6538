// Package store implements the generic remote-synchronized resource store:
// a cached server snapshot with last-request-wins refreshes and optimistic
// mutations that roll back when the backend rejects them.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/logging"
)

// Status is the store's position in idle → loading → ready | failed.
type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "idle"
}

// Snapshot is a read-only copy of the store state.  Items keep server order.
type Snapshot[T any] struct {
	Items         []T
	Status        Status
	Loading       bool
	Err           error
	LastFetchedAt time.Time
}

// Listener receives a snapshot after every change, in change order.  It may
// read the store; it must not call mutating store methods.
type Listener[T any] func(Snapshot[T])

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithClone sets a deep copy function, needed when T holds slices or maps
// that patches modify.
func WithClone[T any](fn func(T) T) Option[T] {
	return func(s *Store[T]) { s.clone = fn }
}

// WithLogger sets the logger.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(s *Store[T]) { s.log = logging.OrNop(l) }
}

// WithClock replaces time.Now for LastFetchedAt.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// Store caches one backend collection.  It owns its items exclusively; all
// changes go through FetchAll, Begin/Mutate and Upsert.
type Store[T any] struct {
	name  string
	id    func(T) string
	clone func(T) T
	log   *zap.Logger
	now   func() time.Time

	mu        sync.Mutex
	items     []T
	status    Status
	err       error
	fetchedAt time.Time
	seq       uint64 // id of the most recently issued fetch
	pending   map[string]*chain[T]
	listeners map[int]Listener[T]
	nextSub   int
	base      context.Context
	stop      context.CancelFunc
	disposed  bool

	// snapshots waiting for delivery, in change order; whoever finds
	// draining unset delivers them without holding mu
	outbox   []Snapshot[T]
	draining bool
}

// New creates an idle store.  id extracts the identity of an item; name is
// used in logs.
func New[T any](name string, id func(T) string, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		name:      name,
		id:        id,
		clone:     func(v T) T { return v },
		log:       zap.NewNop(),
		now:       time.Now,
		pending:   map[string]*chain[T]{},
		listeners: map[int]Listener[T]{},
	}
	for _, o := range opts {
		o(s)
	}
	s.base, s.stop = context.WithCancel(context.Background())
	return s
}

// Init ties the store's lifetime to parent: when parent is done every
// in-flight fetch is cancelled, as if Dispose had been called.
func (s *Store[T]) Init(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.stop()
	s.base, s.stop = context.WithCancel(parent)
}

// Dispose cancels in-flight fetches, drops listeners and rejects further
// use.  Responses that arrive afterwards are ignored.
func (s *Store[T]) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.stop()
	s.listeners = map[int]Listener[T]{}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[T]) Subscribe(fn Listener[T]) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the current items.
func (s *Store[T]) Items() []T { return s.Snapshot().Items }

// Get returns a copy of the item with the given id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.clone(s.items[i]), true
	}
	var zero T
	return zero, false
}

// FetchAll replaces the items with the result of fetch.  Only the most
// recently issued fetch may apply its result: an older one that resolves
// later returns ErrSuperseded and changes nothing.  A fetch whose context is
// cancelled (by the caller or by Dispose) is ignored the same way.  On
// failure the previous items stay visible and Err carries the failure.
func (s *Store[T]) FetchAll(ctx context.Context, fetch func(context.Context) ([]T, error)) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.seq++
	seq := s.seq
	prev := s.status
	s.status = Loading
	s.err = nil
	base := s.base
	s.publishLocked()

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(base, cancel)
	defer stopAfter()

	items, err := fetch(fctx)

	s.mu.Lock()
	switch {
	case s.disposed:
		s.mu.Unlock()
		return ErrDisposed
	case seq != s.seq:
		s.mu.Unlock()
		s.log.Debug("discarding superseded fetch", zap.String("store", s.name), zap.Uint64("seq", seq))
		return ErrSuperseded
	case fctx.Err() != nil:
		// nothing newer is running, so leave the loading state
		s.status = settled(prev, s.fetchedAt)
		s.publishLocked()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return context.Canceled
	case err != nil:
		s.status = Failed
		s.err = err
		s.publishLocked()
		s.log.Debug("fetch failed", zap.String("store", s.name), zap.Error(err))
		return err
	}

	s.items = append([]T(nil), items...)
	s.rebaseLocked()
	s.status = Ready
	s.fetchedAt = s.now()
	s.publishLocked()
	return nil
}

// settled picks the state to return to when a fetch is abandoned.
func settled(prev Status, fetchedAt time.Time) Status {
	if prev == Loading {
		if fetchedAt.IsZero() {
			return Idle
		}
		return Ready
	}
	return prev
}

// Upsert replaces the item with the same id, or inserts item at the front.
// It is for server-confirmed items, such as a newly created record.
func (s *Store[T]) Upsert(item T) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	id := s.id(item)
	if c, ok := s.pending[id]; ok {
		c.base, c.present = s.clone(item), true
		s.applyLocked(id, c)
	} else if i := s.indexLocked(id); i >= 0 {
		s.items[i] = item
	} else {
		s.items = append([]T{item}, s.items...)
	}
	s.publishLocked()
	return nil
}

// SetErr records a user-visible error without touching items.
func (s *Store[T]) SetErr(err error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.publishLocked()
}

// ClearErr drops the error shown to the user.
func (s *Store[T]) ClearErr() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.err = nil
	if s.status == Failed {
		s.status = settled(Loading, s.fetchedAt)
	}
	s.publishLocked()
}

func (s *Store[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Items:         append([]T(nil), s.items...),
		Status:        s.status,
		Loading:       s.status == Loading,
		Err:           s.err,
		LastFetchedAt: s.fetchedAt,
	}
}

func (s *Store[T]) indexLocked(id string) int {
	for i, it := range s.items {
		if s.id(it) == id {
			return i
		}
	}
	return -1
}

// publishLocked queues a snapshot of the state and releases s.mu.  The
// first publisher to find the queue idle delivers every queued snapshot in
// order, with s.mu released, so listeners may read the store.
func (s *Store[T]) publishLocked() {
	if len(s.listeners) == 0 && !s.draining {
		s.mu.Unlock()
		return
	}
	s.outbox = append(s.outbox, s.snapshotLocked())
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		snap := s.outbox[0]
		s.outbox[0] = Snapshot[T]{}
		s.outbox = s.outbox[1:]
		subs := make([]Listener[T], 0, len(s.listeners))
		for i := 0; i < s.nextSub; i++ {
			if fn, ok := s.listeners[i]; ok {
				subs = append(subs, fn)
			}
		}
		s.mu.Unlock()
		for _, fn := range subs {
			fn(snap)
		}
		s.mu.Lock()
	}
	s.outbox = nil
	s.draining = false
	s.mu.Unlock()
}

// IsSuperseded reports whether err only means a newer fetch won.
func IsSuperseded(err error) bool { return errors.Is(err, ErrSuperseded) }
