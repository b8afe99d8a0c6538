package resources

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

// DayLayout is the date format of the range query.
const DayLayout = "2006-01-02"

// Calendar holds chapel events.  Event dates are calendar days stored at UTC
// midnight, so all day arithmetic here is done in UTC.
type Calendar struct {
	*store.Store[model.Event]
	deps Deps
}

func NewCalendar(d Deps) *Calendar {
	return &Calendar{
		Store: store.New("calendar", func(e model.Event) string { return e.ID }, store.WithLogger[model.Event](d.Log)),
		deps:  d,
	}
}

// Fetch loads every chapel event.
func (c *Calendar) Fetch(ctx context.Context) error {
	return refresh(ctx, c.deps, "calendar", c.Store,
		list[model.Event](c.deps.Client, api.Call{Method: http.MethodGet, Path: "/calendar/chapel-events", Auth: true}))
}

// FetchRange replaces the events with those between from and to, both
// inclusive.
func (c *Calendar) FetchRange(ctx context.Context, from, to time.Time) error {
	q := url.Values{}
	q.Set("startDate", from.Format(DayLayout))
	q.Set("endDate", to.Format(DayLayout))
	return refresh(ctx, c.deps, "calendar", c.Store,
		list[model.Event](c.deps.Client, api.Call{Method: http.MethodGet, Path: "/calendar/events", Query: q, Auth: true}))
}

// Filter matches search against title, description and location, and
// typ against the event type (empty or CategoryAll for any).
func (c *Calendar) Filter(search, typ string) []model.Event {
	search = strings.ToLower(strings.TrimSpace(search))
	var out []model.Event
	for _, e := range c.Items() {
		if search != "" && !contains(e.Title, search) && !contains(e.Description, search) && !contains(e.Location, search) {
			continue
		}
		if typ != "" && typ != CategoryAll && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Upcoming returns events from today on, soonest first.
func (c *Calendar) Upcoming() []model.Event {
	today := utcDay(c.deps.now().UTC())
	var out []model.Event
	for _, e := range c.Items() {
		if !utcDay(e.Date).Before(today) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ByDay buckets the events of one month by day of month.
func (c *Calendar) ByDay(year int, month time.Month) map[int][]model.Event {
	out := make(map[int][]model.Event)
	for _, e := range c.Items() {
		d := e.Date.UTC()
		if d.Year() == year && d.Month() == month {
			out[d.Day()] = append(out[d.Day()], e)
		}
	}
	return out
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
