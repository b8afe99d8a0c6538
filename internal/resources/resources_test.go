package resources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/apitest"
	"github.com/iliyamo/chapel-client/internal/countdown"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/queue"
	"github.com/iliyamo/chapel-client/internal/session"
	"github.com/iliyamo/chapel-client/internal/storage"
)

const password = "secret1"

// env is a signed-in member talking to a fake backend.
type env struct {
	srv    *apitest.Server
	user   model.User
	holder *credential.Holder
	state  *session.State
	events *queue.Recorder
	clock  *countdown.Fake
	deps   Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	srv := apitest.New(t)
	e := &env{
		srv:    srv,
		user:   srv.AddUser(model.User{FirstName: "Ama", LastName: "Mensah", Email: "ama@chapel.test"}, password),
		state:  session.NewState(),
		events: &queue.Recorder{},
		clock:  countdown.NewFake(time.Now()),
	}
	e.holder = credential.New(storage.NewMemory(), nil)
	client := api.New(srv.URL(), e.holder, api.WithGate(e.state))
	e.holder.Set(ctx, e.user, srv.Token(e.user.ID, time.Hour))

	snap, err := session.NewBootstrapper(e.holder, client, e.state).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, session.Authenticated, snap.Status)

	e.deps = Deps{
		Client:    client,
		Session:   e.state,
		Holder:    e.holder,
		Publisher: e.events,
		Now:       e.clock.Now,
	}
	return e
}

func (e *env) lastEvent(t *testing.T) queue.SyncEvent {
	t.Helper()
	evs := e.events.Events()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

// waitFor polls until route has been hit n times.
func waitFor(t *testing.T, srv *apitest.Server, route string, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.WaitCalls(ctx, route, n))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
