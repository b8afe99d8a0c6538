package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/logging"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/utils"
)

// MePath is the identity endpoint.
const MePath = "/auth/me"

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *Bootstrapper) { b.log = logging.OrNop(l) } }

// WithClock replaces time.Now for the token expiry check.
func WithClock(now func() time.Time) Option { return func(b *Bootstrapper) { b.now = now } }

// Bootstrapper reconciles the persisted credential with the backend once per
// process.
type Bootstrapper struct {
	holder *credential.Holder
	client *api.Client
	state  *State
	log    *zap.Logger
	now    func() time.Time

	group       singleflight.Group
	initialized atomic.Bool

	mu  sync.Mutex
	err error
}

// NewBootstrapper wires state to holder as an observer; state should also be
// the client's gate.
func NewBootstrapper(holder *credential.Holder, client *api.Client, state *State, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{holder: holder, client: client, state: state, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(b)
	}
	holder.Observe(state)
	return b
}

// Run performs the identity check the first time it is called and returns
// the settled session.  Concurrent callers share the one in-flight check;
// later calls return the outcome without touching the network.  If ctx ends
// first Run returns ctx.Err() while the check finishes in the background.
func (b *Bootstrapper) Run(ctx context.Context) (Snapshot, error) {
	if b.initialized.Load() {
		return b.state.Snapshot(), nil
	}
	ch := b.group.DoChan("session", func() (any, error) {
		if !b.initialized.Load() {
			b.check(context.WithoutCancel(ctx))
			b.initialized.Store(true)
		}
		return nil, nil
	})
	select {
	case <-ch:
		return b.state.Snapshot(), nil
	case <-ctx.Done():
		return b.state.Snapshot(), ctx.Err()
	}
}

// Err explains why the last check ended unauthenticated, if it did because
// of a failure.
func (b *Bootstrapper) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Bootstrapper) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *Bootstrapper) check(ctx context.Context) {
	if !b.state.beginCheck() {
		// a login already settled the session
		return
	}

	auth, ok := b.holder.Load(ctx)
	if !ok {
		b.log.Debug("no stored credential")
		b.holder.Clear(ctx)
		return
	}
	if utils.Expired(auth.Token, b.now()) {
		b.log.Info("stored token has expired")
		b.setErr(&api.Error{Kind: api.Unauthorized, Message: "your session has expired, please log in again"})
		b.holder.Clear(ctx)
		return
	}

	user, err := api.Fetch[model.User](ctx, b.client, api.Call{Method: http.MethodGet, Path: MePath, Auth: true, SkipGate: true})
	if err == nil && user.ID == "" {
		err = &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: "identity check returned no user"}
	}
	if err != nil {
		b.setErr(err)
		b.log.Info("session check failed", zap.Error(err))
		if api.IsUnauthorized(err) && b.state.Status() == Unauthenticated {
			// the fetcher already cleared the rejected token
			return
		}
		b.holder.Clear(ctx)
		return
	}

	b.setErr(nil)
	b.holder.Set(ctx, user, auth.Token)
	b.log.Debug("session restored", zap.String("user_id", user.ID))
}
