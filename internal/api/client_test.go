package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chapel-client/internal/config"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/storage"
)

func newHolder(t *testing.T, token string) (*credential.Holder, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	h := credential.New(mem, nil)
	if token != "" {
		h.Set(context.Background(), model.User{ID: "u1"}, token)
	}
	return h, mem
}

func TestBearerHeader(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	holder, _ := newHolder(t, "tok-1")
	c := New(srv.URL, holder)

	tests := []struct {
		name string
		call Call
		want string
	}{
		{"auth with token", Call{Method: http.MethodGet, Path: "/x", Auth: true}, "Bearer tok-1"},
		{"public call", Call{Method: http.MethodGet, Path: "/x"}, ""},
		{"explicit token", Call{Method: http.MethodGet, Path: "/x", Token: "fresh"}, "Bearer fresh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Request(context.Background(), tt.call)
			require.True(t, res.OK)
			assert.Equal(t, tt.want, got.Load())
		})
	}
}

func TestRawBodyKeepsContentType(t *testing.T) {
	type seen struct{ contentType, body string }
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.Store(seen{r.Header.Get("Content-Type"), string(b)})
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c := New(srv.URL, nil)

	res := c.Request(context.Background(), Call{Method: http.MethodPut, Path: "/x", Raw: []byte("--b--"), ContentType: "multipart/form-data; boundary=b", Body: map[string]string{"ignored": "yes"}})
	require.True(t, res.OK)
	assert.Equal(t, seen{"multipart/form-data; boundary=b", "--b--"}, got.Load())

	res = c.Request(context.Background(), Call{Method: http.MethodPut, Path: "/x", Body: map[string]string{"a": "b"}})
	require.True(t, res.OK)
	assert.Equal(t, seen{"application/json", `{"a":"b"}`}, got.Load())
}

func TestNoHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	holder, _ := newHolder(t, "")
	res := New(srv.URL, holder).Request(context.Background(), Call{Method: http.MethodGet, Path: "/x", Auth: true})
	assert.True(t, res.OK)
}

func TestStatusTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"validation with message", 400, `{"message":"Title is required"}`, ValidationError, "Title is required"},
		{"validation with error field", 409, `{"error":"already a member"}`, ValidationError, "already a member"},
		{"forbidden without body", 403, ``, ValidationError, "Forbidden"},
		{"server error", 500, `<html>oops</html>`, ServerError, "the server had a problem, please try again"},
		{"redirect", 302, `{}`, MalformedResponse, "unexpected status 302 Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, nil, WithHTTPClient(&http.Client{
				CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
			}))
			res := c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/x"})
			require.False(t, res.OK)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.message, res.Err.Message)
			assert.JSONEq(t, `{}`, string(res.Data))
		})
	}
}

func TestUnauthorizedClearsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"jwt expired"}`))
	}))
	defer srv.Close()

	holder, mem := newHolder(t, "tok-1")
	clears := 0
	holder.Observe(observerFunc(func() { clears++ }))

	res := New(srv.URL, holder).Request(context.Background(), Call{Method: http.MethodGet, Path: "/votes/current", Auth: true})
	require.False(t, res.OK)
	assert.Equal(t, Unauthorized, res.Err.Kind)
	assert.ErrorIs(t, res.Failure(), ErrUnauthorized)
	assert.True(t, IsUnauthorized(res.Failure()))
	assert.Equal(t, 1, clears)
	assert.False(t, mem.Has(storage.TokenKey))
}

func TestUnauthorizedLoginDoesNotClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	holder, _ := newHolder(t, "tok-1")
	res := New(srv.URL, holder).Request(context.Background(), Call{Method: http.MethodPost, Path: "/auth/login", Body: map[string]string{"email": "a"}})
	assert.Equal(t, Unauthorized, res.Err.Kind)
	_, ok := holder.Token()
	assert.True(t, ok, "a failed login must not drop the existing session")
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := New(url, nil).Request(context.Background(), Call{Method: http.MethodGet, Path: "/x"})
	require.False(t, res.OK)
	assert.Equal(t, NetworkError, res.Err.Kind)
	assert.True(t, res.Err.Retryable())
	assert.ErrorIs(t, res.Failure(), ErrNetwork)
}

func TestCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := New(srv.URL, nil).Request(ctx, Call{Method: http.MethodGet, Path: "/x"})
	require.False(t, res.OK)
	assert.Equal(t, Canceled, res.Err.Kind)
}

func TestMalformedBodyFallsBackToEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"votes": [`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	res := c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/x"})
	require.True(t, res.OK)
	assert.JSONEq(t, `{}`, string(res.Data))

	_, err := Fetch[[]model.Department](context.Background(), c, Call{Method: http.MethodGet, Path: "/x"})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, MalformedResponse, KindOf(err))
}

func TestFetchDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body model.VoteRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v1", body.VoteID)
		w.Write([]byte(`{"vote":{"_id":"v1","category":"Usher"}}`))
	}))
	defer srv.Close()

	out, err := Fetch[model.VoteResponse](context.Background(), New(srv.URL+"/", nil), Call{
		Method: http.MethodPost, Path: "/votes/voteUser", Body: model.VoteRequest{VoteID: "v1", NomineeID: "n1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Usher", out.Vote.Category)
}

type gateFunc func(ctx context.Context) error

func (g gateFunc) Wait(ctx context.Context) error { return g(ctx) }

func TestGateOnlyHoldsAuthenticatedCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	waited := 0
	c := New(srv.URL, nil, WithGate(gateFunc(func(ctx context.Context) error {
		waited++
		return nil
	})))
	c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/public"})
	c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/auth/me", Auth: true, SkipGate: true})
	assert.Equal(t, 0, waited)
	c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/votes/current", Auth: true})
	assert.Equal(t, 1, waited)
}

func TestGateCanceled(t *testing.T) {
	c := New("http://127.0.0.1:1", nil, WithGate(gateFunc(func(ctx context.Context) error { return context.Canceled })))
	res := c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/x", Auth: true})
	assert.Equal(t, Canceled, res.Err.Kind)
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, WithRateLimit(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillInterval: time.Hour}))
	require.True(t, c.Request(context.Background(), Call{Method: http.MethodGet, Path: "/x"}).OK)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := c.Request(ctx, Call{Method: http.MethodGet, Path: "/x"})
	assert.Equal(t, Canceled, res.Err.Kind)
}

type observerFunc func()

func (f observerFunc) CredentialSet(model.User, string) {}
func (f observerFunc) CredentialCleared()               { f() }
