// Package session decides, once per process, whether the persisted
// credential still belongs to a signed-in member, and exposes the outcome to
// everything that must not touch protected resources before it is known.
package session

import (
	"context"
	"sync"

	"github.com/iliyamo/chapel-client/internal/model"
)

// Status is the session's position in
// unchecked → checking → authenticated | unauthenticated.
type Status int

const (
	Unchecked Status = iota
	Checking
	Authenticated
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unchecked"
}

// Settled reports whether the status is final for this check.
func (s Status) Settled() bool { return s == Authenticated || s == Unauthenticated }

// Snapshot is what listeners receive.
type Snapshot struct {
	Status Status
	User   *model.User
}

// State holds the session status.  It observes the credential holder, so
// every set or clear of the credential moves it; only the Bootstrapper moves
// it into Checking.  It also gates authenticated API calls until the first
// check has settled.
type State struct {
	mu        sync.Mutex
	status    Status
	user      *model.User
	settled   chan struct{} // closed on the first settled status
	listeners map[int]func(Snapshot)
	nextSub   int

	outbox   []Snapshot // transitions awaiting delivery, in order
	draining bool
}

func NewState() *State {
	return &State{settled: make(chan struct{}), listeners: map[int]func(Snapshot){}}
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// User returns the confirmed identity while authenticated.
func (s *State) User() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Authenticated || s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// Snapshot returns status and user together.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every transition and returns a function that
// removes it.  fn may read the session but must not wait on a transition.
func (s *State) Subscribe(fn func(Snapshot)) func() {
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

// Wait blocks until the session has left unchecked/checking for the first
// time.  It satisfies api.Gate, so no protected fetch starts before the
// identity check is done.
func (s *State) Wait(ctx context.Context) error {
	select {
	case <-s.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the first check has settled.
func (s *State) Done() <-chan struct{} { return s.settled }

// CredentialSet implements credential.Observer.
func (s *State) CredentialSet(user model.User, _ string) {
	u := user
	s.transition(Authenticated, &u)
}

// CredentialCleared implements credential.Observer.
func (s *State) CredentialCleared() {
	s.transition(Unauthenticated, nil)
}

// beginCheck moves an unchecked session to checking.  It reports false when
// the session was already past unchecked.
func (s *State) beginCheck() bool {
	s.mu.Lock()
	if s.status != Unchecked {
		s.mu.Unlock()
		return false
	}
	s.status = Checking
	s.publishLocked()
	return true
}

func (s *State) transition(to Status, user *model.User) {
	s.mu.Lock()
	s.status = to
	s.user = user
	if to.Settled() {
		select {
		case <-s.settled:
		default:
			close(s.settled)
		}
	}
	s.publishLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{Status: s.status}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// publishLocked queues the new snapshot and releases s.mu.  The first
// publisher to find the queue idle delivers every queued transition in
// order, without holding s.mu.
func (s *State) publishLocked() {
	s.outbox = append(s.outbox, s.snapshotLocked())
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		snap := s.outbox[0]
		s.outbox = s.outbox[1:]
		subs := make([]func(Snapshot), 0, len(s.listeners))
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
