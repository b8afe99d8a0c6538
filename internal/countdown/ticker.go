// Package countdown drives deadline displays such as the time left on a
// vote.  Remaining time is recomputed from the clock on every tick, so a
// slow or delayed tick never accumulates drift.
package countdown

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/logging"
)

// EndedText is shown once the deadline has passed.
const EndedText = "Voting ended"

// Remaining is the breakdown of the time left until a deadline, rounded up
// to whole seconds.
type Remaining struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
	Left    time.Duration
	Ended   bool
}

// Until computes the time left from now to end.
func Until(end, now time.Time) Remaining {
	left := end.Sub(now)
	if left <= 0 {
		return Remaining{Ended: true}
	}
	secs := int((left + time.Second - 1) / time.Second)
	return Remaining{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
		Left:    left,
	}
}

// next is the delay until the displayed value changes.
func (r Remaining) next() time.Duration {
	whole := time.Duration(r.Days*86400+r.Hours*3600+r.Minutes*60+r.Seconds) * time.Second
	return r.Left - whole + time.Second
}

func (r Remaining) String() string {
	if r.Ended {
		return EndedText
	}
	var b strings.Builder
	if r.Days > 0 {
		fmt.Fprintf(&b, "%dd ", r.Days)
	}
	if r.Days > 0 || r.Hours > 0 {
		fmt.Fprintf(&b, "%dh ", r.Hours)
	}
	if r.Days > 0 || r.Hours > 0 || r.Minutes > 0 {
		fmt.Fprintf(&b, "%dm ", r.Minutes)
	}
	fmt.Fprintf(&b, "%ds", r.Seconds)
	return b.String()
}

// Format renders d as "1d 2h 3m 4s", leaving out leading zero units.
// Non-positive durations render as "0s".
func Format(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return Until(time.Unix(0, 0).Add(d), time.Unix(0, 0)).String()
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(t *Ticker) { t.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(t *Ticker) { t.log = logging.OrNop(l) } }

// Ticker creates deadline subscriptions sharing one clock.
type Ticker struct {
	clock Clock
	log   *zap.Logger
}

func New(opts ...Option) *Ticker {
	t := &Ticker{clock: Real{}, log: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Now returns the ticker's current time.
func (t *Ticker) Now() time.Time { return t.clock.Now() }

// Subscribe emits the time left until end right away and then whenever
// the displayed value changes, about once a second.  When the deadline
// passes onTick receives an ended Remaining exactly once and the
// subscription stops.  onTick runs on the subscription's goroutine and must
// not call Reset or Stop.
func (t *Ticker) Subscribe(end time.Time, onTick func(Remaining)) *Subscription {
	s := &Subscription{t: t, onTick: onTick}
	s.Reset(end)
	return s
}

// Subscription is one running countdown.  At most one timer is active per
// subscription.
type Subscription struct {
	t      *Ticker
	onTick func(Remaining)

	mu   sync.Mutex
	end  time.Time
	stop chan struct{}
	done chan struct{}

	lastMu sync.Mutex
	last   Remaining
}

// Reset stops the current countdown and starts a new one towards end.
func (s *Subscription) Reset(end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
	s.end = end
	s.stop, s.done = make(chan struct{}), make(chan struct{})
	go s.run(end, s.stop, s.done)
}

// Stop cancels the countdown.  No tick is delivered after Stop returns.
func (s *Subscription) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
}

// End returns the current deadline.
func (s *Subscription) End() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Last returns the most recently emitted value.
func (s *Subscription) Last() Remaining {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last
}

func (s *Subscription) haltLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

func (s *Subscription) run(end time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		r := Until(end, s.t.clock.Now())
		var timer Timer
		if !r.Ended {
			timer = s.t.clock.NewTimer(r.next())
		}

		s.lastMu.Lock()
		s.last = r
		s.lastMu.Unlock()
		s.onTick(r)

		if r.Ended {
			s.t.log.Debug("countdown ended", zap.Time("end", end))
			return
		}
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
		}
	}
}
