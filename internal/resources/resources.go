// Package resources instantiates the resource store once per backend
// collection: votes, departments, prayer requests, announcements, birthdays,
// calendar events and the member's own profile.
package resources

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/logging"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/queue"
	"github.com/iliyamo/chapel-client/internal/session"
	"github.com/iliyamo/chapel-client/internal/store"
)

// ErrNotSignedIn is returned by operations that act as the current member
// while the session is not authenticated.
var ErrNotSignedIn = errors.New("you need to be logged in")

const publishTimeout = 3 * time.Second

// Deps is what every resource needs.  Only Client is required.
type Deps struct {
	Client    *api.Client
	Session   *session.State     // identifies the acting member
	Holder    *credential.Holder // refreshed after profile edits
	Publisher queue.Publisher
	Log       *zap.Logger
	Now       func() time.Time
}

func (d Deps) logger() *zap.Logger { return logging.OrNop(d.Log) }

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) user() (model.User, error) {
	if d.Session == nil {
		return model.User{}, ErrNotSignedIn
	}
	u, ok := d.Session.User()
	if !ok {
		return model.User{}, ErrNotSignedIn
	}
	return u, nil
}

// publish sends ev without letting a slow broker hold up the caller.
func (d Deps) publish(ctx context.Context, ev queue.SyncEvent) {
	if d.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.Publisher.Publish(pctx, ev); err != nil {
		d.logger().Debug("sync event not published", zap.String("resource", ev.Resource), zap.Error(err))
	}
}

// mutated reports the outcome of an optimistic mutation.
func (d Deps) mutated(ctx context.Context, resource, id string, err error) {
	action := queue.ActionMutated
	if err != nil {
		action = queue.ActionRolledBack
	}
	ev := queue.NewEvent(resource, action)
	ev.ID = id
	if u, uerr := d.user(); uerr == nil {
		ev.UserID = u.ID
	}
	if err != nil {
		ev.Error = api.Message(err)
	}
	d.publish(ctx, ev)
}

// ignorable reports fetch outcomes that say nothing about the backend.
func ignorable(err error) bool {
	return store.IsSuperseded(err) ||
		errors.Is(err, store.ErrDisposed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		api.KindOf(err) == api.Canceled
}

// refresh runs one FetchAll on s and reports it.
func refresh[T any](ctx context.Context, d Deps, resource string, s *store.Store[T], fetch func(context.Context) ([]T, error)) error {
	err := s.FetchAll(ctx, fetch)
	switch {
	case err == nil:
		ev := queue.NewEvent(resource, queue.ActionFetched)
		ev.Count = len(s.Items())
		d.publish(ctx, ev)
	case ignorable(err):
	default:
		d.logger().Debug("refresh failed", zap.String("resource", resource), zap.Error(err))
		ev := queue.NewEvent(resource, queue.ActionFetchError)
		ev.Error = api.Message(err)
		d.publish(ctx, ev)
	}
	return err
}

// list fetches a JSON array.
func list[T any](c *api.Client, call api.Call) func(context.Context) ([]T, error) {
	return func(ctx context.Context) ([]T, error) {
		return api.Fetch[[]T](ctx, c, call)
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
