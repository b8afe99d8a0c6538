package resources

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

// Birthday periods accepted by Birthdays.Filter.
const (
	PeriodAll      = "all"
	PeriodToday    = "today"
	PeriodWeek     = "week"
	PeriodMonth    = "month"
	PeriodUpcoming = "upcoming"
)

// upcomingDays is how far ahead PeriodUpcoming looks.
const upcomingDays = 30

type Birthdays struct {
	*store.Store[model.Birthday]
	deps Deps
}

func NewBirthdays(d Deps) *Birthdays {
	return &Birthdays{
		Store: store.New("birthdays", func(b model.Birthday) string { return b.ID }, store.WithLogger[model.Birthday](d.Log)),
		deps:  d,
	}
}

// Fetch loads the birthday list.  The endpoint is public.
func (b *Birthdays) Fetch(ctx context.Context) error {
	return refresh(ctx, b.deps, "birthdays", b.Store, func(ctx context.Context) ([]model.Birthday, error) {
		resp, err := api.Fetch[model.BirthdayList](ctx, b.deps.Client, api.Call{Method: http.MethodGet, Path: "/users/getBirthdays"})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: orDefault(resp.Message, "failed to load birthdays")}
		}
		return resp.Birthdays, nil
	})
}

// Filter returns the birthdays whose name, department or position matches
// search and that fall in period.  Today, week and month use the backend's
// flags; upcoming means within the next 30 days, today excluded.
func (b *Birthdays) Filter(search, period string) []model.Birthday {
	search = strings.ToLower(strings.TrimSpace(search))
	now := b.deps.now()
	var out []model.Birthday
	for _, bd := range b.Items() {
		if search != "" &&
			!contains(bd.FirstName+" "+bd.LastName, search) &&
			!contains(bd.Department, search) &&
			!contains(bd.Position, search) {
			continue
		}
		if inPeriod(bd, period, now) {
			out = append(out, bd)
		}
	}
	return out
}

func inPeriod(bd model.Birthday, period string, now time.Time) bool {
	switch period {
	case PeriodToday:
		return bd.IsToday
	case PeriodWeek:
		return bd.IsThisWeek
	case PeriodMonth:
		return bd.IsThisMonth
	case PeriodUpcoming:
		d := DaysUntil(bd.DateOfBirth, now)
		return d > 0 && d <= upcomingDays
	}
	return true
}

// DaysUntil counts calendar days from now to the next anniversary of dob,
// 0 when it is today.  A 29 February birthday falls on 1 March in common
// years.
func DaysUntil(dob, now time.Time) int {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dob = dob.UTC()
	next := time.Date(today.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, loc)
	if next.Before(today) {
		next = time.Date(today.Year()+1, dob.Month(), dob.Day(), 0, 0, 0, 0, loc)
	}
	return int(next.Sub(today).Hours()/24 + 0.5)
}
