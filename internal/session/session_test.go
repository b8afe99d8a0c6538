package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/apitest"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/storage"
)

const (
	meRoute     = "GET /api/auth/me"
	loginRoute  = "POST /api/auth/login"
	votesRoute  = "GET /api/votes/current"
	logoutRoute = "POST /api/auth/logout"
)

type env struct {
	srv    *apitest.Server
	mem    *storage.Memory
	holder *credential.Holder
	state  *State
	client *api.Client
	boot   *Bootstrapper
	auth   *Auth

	mu          sync.Mutex
	transitions []Status
}

// newEnv builds the client stack over mem, as a fresh process would.
func newEnv(t *testing.T, srv *apitest.Server, mem *storage.Memory) *env {
	t.Helper()
	e := &env{srv: srv, mem: mem, state: NewState()}
	e.holder = credential.New(mem, nil)
	e.client = api.New(srv.URL(), e.holder, api.WithGate(e.state))
	e.boot = NewBootstrapper(e.holder, e.client, e.state)
	e.auth = NewAuth(e.client, e.holder, nil)
	e.state.Subscribe(func(s Snapshot) {
		e.mu.Lock()
		e.transitions = append(e.transitions, s.Status)
		e.mu.Unlock()
	})
	return e
}

func (e *env) seen() []Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Status(nil), e.transitions...)
}

// persist stores a credential the way an earlier run of the app would have.
func persist(t *testing.T, mem *storage.Memory, user model.User, token string) {
	t.Helper()
	credential.New(mem, nil).Set(context.Background(), user, token)
}

func TestNoCredentialGoesStraightToUnauthenticated(t *testing.T) {
	srv := apitest.New(t)
	e := newEnv(t, srv, storage.NewMemory())

	snap, err := e.boot.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, snap.Status)
	assert.Zero(t, srv.Calls(meRoute))
	assert.Equal(t, []Status{Checking, Unauthenticated}, e.seen())
}

func TestRestoresValidSession(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	token := srv.Token(ada.ID, time.Hour)
	persist(t, mem, model.User{ID: ada.ID, FirstName: "stale name"}, token)

	e := newEnv(t, srv, mem)
	snap, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Authenticated, snap.Status)
	require.NotNil(t, snap.User)
	assert.Equal(t, "Ada", snap.User.FirstName, "identity comes from the backend, not storage")
	assert.Equal(t, 1, srv.Calls(meRoute))
	got, _ := e.holder.Token()
	assert.Equal(t, token, got)
	assert.Equal(t, []Status{Checking, Authenticated}, e.seen())
}

func TestRejectedTokenClearsStorageOnce(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	token := srv.Token(ada.ID, time.Hour)
	persist(t, mem, ada, token)
	srv.Revoke(token)

	e := newEnv(t, srv, mem)
	snap, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Unauthenticated, snap.Status)
	assert.False(t, mem.Has(storage.TokenKey))
	assert.False(t, mem.Has(storage.AuthKey))
	assert.Equal(t, []Status{Checking, Unauthenticated}, e.seen(), "cleared exactly once")
	assert.True(t, api.IsUnauthorized(e.boot.Err()))
}

func TestServerErrorAlsoClears(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, time.Hour))
	srv.Fail(meRoute, http.StatusInternalServerError, "boom", 1)

	e := newEnv(t, srv, mem)
	snap, _ := e.boot.Run(context.Background())
	assert.Equal(t, Unauthenticated, snap.Status)
	assert.False(t, mem.Has(storage.TokenKey))
	assert.Equal(t, api.ServerError, api.KindOf(e.boot.Err()))
}

func TestExpiredTokenSkipsNetwork(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, -time.Minute))

	e := newEnv(t, srv, mem)
	snap, _ := e.boot.Run(context.Background())
	assert.Equal(t, Unauthenticated, snap.Status)
	assert.Zero(t, srv.Calls(meRoute))
	assert.False(t, mem.Has(storage.TokenKey))
}

func TestConcurrentRunsShareOneCheck(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, time.Hour))
	release := srv.Hold(meRoute)

	e := newEnv(t, srv, mem)
	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]Status, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := e.boot.Run(ctx)
			assert.NoError(t, err)
			results[i] = snap.Status
		}(i)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, srv.WaitCalls(waitCtx, meRoute, 1))
	assert.Equal(t, Checking, e.state.Status())
	release()
	wg.Wait()

	for _, s := range results {
		assert.Equal(t, Authenticated, s)
	}
	_, err := e.boot.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls(meRoute))
}

func TestProtectedFetchWaitsForCheck(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, time.Hour))
	e := newEnv(t, srv, mem)

	done := make(chan api.Result, 1)
	go func() {
		done <- e.client.Request(context.Background(), api.Call{Method: http.MethodGet, Path: "/votes/current", Auth: true})
	}()
	select {
	case <-done:
		t.Fatal("protected fetch ran before the session check")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, srv.Calls(votesRoute))

	_, err := e.boot.Run(context.Background())
	require.NoError(t, err)
	res := <-done
	assert.True(t, res.OK, "%v", res.Failure())
}

func TestRunCallerCanGiveUp(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, time.Hour))
	release := srv.Hold(meRoute)
	e := newEnv(t, srv, mem)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := e.boot.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the check itself was not abandoned
	release()
	snap, err := e.boot.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, snap.Status)
	assert.Equal(t, 1, srv.Calls(meRoute))
}

func TestLogin(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	e := newEnv(t, srv, storage.NewMemory())
	_, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	user, err := e.auth.Login(context.Background(), " ada@example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, Authenticated, e.state.Status())
	assert.True(t, e.mem.Has(storage.TokenKey))
	assert.Equal(t, 1, srv.Calls(meRoute), "token confirmed before it is stored")
}

func TestLoginWrongPasswordKeepsState(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	token := srv.Token(ada.ID, time.Hour)
	persist(t, mem, ada, token)
	e := newEnv(t, srv, mem)
	_, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	_, err = e.auth.Login(context.Background(), "ada@example.com", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.(*api.Error).Message)
	got, ok := e.holder.Token()
	assert.True(t, ok, "a failed login must not clear the current session")
	assert.Equal(t, token, got)

	_, err = e.auth.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, 1, srv.Calls(loginRoute))
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, time.Hour))
	e := newEnv(t, srv, mem)
	_, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	srv.Fail(logoutRoute, http.StatusInternalServerError, "down", 1)
	err = e.auth.Logout(context.Background())
	assert.ErrorIs(t, err, api.ErrServer)
	assert.Equal(t, Unauthenticated, e.state.Status())
	assert.False(t, mem.Has(storage.TokenKey))

	// again, with nothing left to log out
	require.NoError(t, e.auth.Logout(context.Background()))
	assert.Equal(t, Unauthenticated, e.state.Status())
	assert.Equal(t, 1, srv.Calls(logoutRoute))
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	token := srv.Token(ada.ID, time.Hour)
	persist(t, mem, ada, token)
	e := newEnv(t, srv, mem)
	_, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.auth.Logout(context.Background()))

	res := e.client.Request(context.Background(), api.Call{Method: http.MethodGet, Path: "/auth/me", Auth: true, Token: token})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestRegister(t *testing.T) {
	srv := apitest.New(t)
	e := newEnv(t, srv, storage.NewMemory())
	req := model.RegisterRequest{
		FirstName:       "Grace",
		LastName:        "Hopper",
		Email:           "grace@example.com",
		Password:        "secret",
		ConfirmPassword: "secret",
	}

	msg, err := e.auth.Register(context.Background(), req)
	require.NoError(t, err, "the confirmation must not be sent")
	assert.Equal(t, "User registered successfully", msg)

	_, err = e.auth.Register(context.Background(), req)
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Contains(t, err.Error(), "User already exists")

	req.ConfirmPassword = "other"
	_, err = e.auth.Register(context.Background(), req)
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Equal(t, 2, srv.Calls("POST /api/auth/register"))

	_, err = e.auth.Login(context.Background(), "grace@example.com", "secret")
	assert.NoError(t, err)
}

func TestClearTwiceStaysUnauthenticated(t *testing.T) {
	srv := apitest.New(t)
	ada := srv.AddUser(model.User{FirstName: "Ada", Email: "ada@example.com"}, "pw")
	mem := storage.NewMemory()
	persist(t, mem, ada, srv.Token(ada.ID, time.Hour))
	e := newEnv(t, srv, mem)
	_, err := e.boot.Run(context.Background())
	require.NoError(t, err)

	e.holder.Clear(context.Background())
	assert.Equal(t, Unauthenticated, e.state.Status())
	e.holder.Clear(context.Background())
	assert.Equal(t, Unauthenticated, e.state.Status())
	_, ok := e.state.User()
	assert.False(t, ok)
}

func TestListenerReadsStateDuringConcurrentTransitions(t *testing.T) {
	s := NewState()
	var (
		mu   sync.Mutex
		last Snapshot
	)
	s.Subscribe(func(snap Snapshot) {
		time.Sleep(time.Millisecond)
		_ = s.Snapshot()
		_, _ = s.User()
		mu.Lock()
		last = snap
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if i%2 == 0 {
					s.CredentialSet(model.User{ID: "u1", Email: "ama@example.com"}, "token")
				} else {
					s.CredentialCleared()
				}
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transitions stalled while a listener read the session")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, s.Snapshot(), last, "the newest transition is delivered last")
}
