// Package apitest runs an in-memory chapel backend for tests.  It speaks the
// same JSON as the real API closely enough for the client to be exercised
// end to end, and lets a test inject failures or hold a request in flight.
package apitest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chapel-client/internal/model"
)

// Secret signs every token the fake issues.
const Secret = "apitest-secret"

type account struct {
	user model.User
	hash string
}

type fault struct {
	status  int
	message string
	times   int // remaining; <=0 means forever
}

// Server is the fake backend.  All exported methods are safe for concurrent
// use with in-flight requests.
type Server struct {
	Echo *echo.Echo
	srv  *httptest.Server

	mu            sync.Mutex
	nextID        int
	accounts      map[string]*account // by id
	byEmail       map[string]string
	revoked       map[string]bool
	votes         []model.Vote
	ballots       map[string]map[string]string // vote id -> user id -> nominee id
	departments   []model.Department
	prayers       []model.PrayerRequest
	announcements []model.Announcement
	birthdays     []model.Birthday
	events        []model.Event
	images        map[string][]byte // user id -> last uploaded avatar
	faults        map[string]*fault
	holds         map[string]chan struct{}
	calls         map[string]int
	tokenTTL      time.Duration
}

// New starts a server and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: map[string]*account{},
		byEmail:  map[string]string{},
		revoked:  map[string]bool{},
		ballots:  map[string]map[string]string{},
		images:   map[string][]byte{},
		faults:   map[string]*fault{},
		holds:    map[string]chan struct{}{},
		calls:    map[string]int{},
		tokenTTL: time.Hour,
	}
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	registerRoutes(s.Echo, s)
	s.srv = httptest.NewServer(s.Echo)
	t.Cleanup(s.Close)
	return s
}

// URL is the API base URL to hand to api.New.
func (s *Server) URL() string { return s.srv.URL + "/api" }

// Close stops the server, releasing held requests first.
func (s *Server) Close() {
	s.mu.Lock()
	for k, ch := range s.holds {
		close(ch)
		delete(s.holds, k)
	}
	s.mu.Unlock()
	s.srv.CloseClientConnections()
	s.srv.Close()
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%04d", prefix, s.nextID)
}

// AddUser registers a member with password and returns it with its id.
func (s *Server) AddUser(u model.User, password string) model.User {
	hash, err := hashPassword(password)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.newID("u")
	}
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.byEmail[normalizeEmail(u.Email)] = u.ID
	return u
}

// RemoveUser deletes a member; its tokens stop working.
func (s *Server) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		delete(s.byEmail, normalizeEmail(a.user.Email))
		delete(s.accounts, id)
	}
}

// Token issues a token for userID that expires after ttl.  A negative ttl
// yields an already expired token.
func (s *Server) Token(userID string, ttl time.Duration) string {
	tok, err := issueToken(userID, ttl)
	if err != nil {
		panic(err)
	}
	return tok
}

// SetTokenTTL changes the lifetime of tokens issued by login.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	s.tokenTTL = ttl
	s.mu.Unlock()
}

// Revoke makes token fail with 401 from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	s.revoked[token] = true
	s.mu.Unlock()
}

func (s *Server) SetVotes(v ...model.Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = nil
	for _, x := range v {
		s.votes = append(s.votes, x.Clone())
	}
}

func (s *Server) SetDepartments(d ...model.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments = nil
	for _, x := range d {
		s.departments = append(s.departments, x.Clone())
	}
}

func (s *Server) SetPrayers(p ...model.PrayerRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prayers = nil
	for _, x := range p {
		s.prayers = append(s.prayers, x.Clone())
	}
}

func (s *Server) SetAnnouncements(a ...model.Announcement) {
	s.mu.Lock()
	s.announcements = append([]model.Announcement(nil), a...)
	s.mu.Unlock()
}

func (s *Server) SetBirthdays(b ...model.Birthday) {
	s.mu.Lock()
	s.birthdays = append([]model.Birthday(nil), b...)
	s.mu.Unlock()
}

func (s *Server) SetEvents(e ...model.Event) {
	s.mu.Lock()
	s.events = append([]model.Event(nil), e...)
	s.mu.Unlock()
}

// Vote returns the server's copy of a vote category.
func (s *Server) Vote(id string) (model.Vote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes {
		if v.ID == id {
			return v.Clone(), true
		}
	}
	return model.Vote{}, false
}

// User returns the server's copy of a member.
func (s *Server) User(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.User{}, false
	}
	return a.user, true
}

// Image returns the last avatar uploaded by a member.
func (s *Server) Image(userID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.images[userID]
	return b, ok
}

// Department returns the server's copy of a department.
func (s *Server) Department(id string) (model.Department, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.departments {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return model.Department{}, false
}

// Fail makes the next times requests to route answer status with message.
// route is "METHOD /api/path" using echo's pattern syntax, for example
// "POST /api/departments/:id/join/:userId".  times <= 0 fails forever.
func (s *Server) Fail(route string, status int, message string, times int) {
	s.mu.Lock()
	s.faults[route] = &fault{status: status, message: message, times: times}
	s.mu.Unlock()
}

// Heal removes an injected failure.
func (s *Server) Heal(route string) {
	s.mu.Lock()
	delete(s.faults, route)
	s.mu.Unlock()
}

// Hold blocks requests to route until the returned function is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	if prev, ok := s.holds[route]; ok {
		close(prev)
	}
	s.holds[route] = ch
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.holds[route] == ch {
			delete(s.holds, route)
			close(ch)
		}
	}
}

// Calls counts requests that reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// WaitCalls blocks until route has been hit n times or ctx ends.
func (s *Server) WaitCalls(ctx context.Context, route string, n int) error {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for {
		if s.Calls(route) >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// instrument counts calls, applies injected faults and holds.
func (s *Server) instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		route := c.Request().Method + " " + c.Path()
		s.mu.Lock()
		s.calls[route]++
		hold := s.holds[route]
		f := s.faults[route]
		var status int
		var message string
		if f != nil {
			status, message = f.status, f.message
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.faults, route)
				}
			}
		}
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-c.Request().Context().Done():
				return c.Request().Context().Err()
			}
		}
		if f != nil {
			if status == 0 {
				// drop the connection without an answer
				panic(http.ErrAbortHandler)
			}
			return c.JSON(status, echo.Map{"message": message})
		}
		return next(c)
	}
}
