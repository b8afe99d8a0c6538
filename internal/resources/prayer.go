package resources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

var (
	ErrEmptyPrayer   = errors.New("please add a title and your prayer request")
	ErrUnknownPrayer = errors.New("prayer request not found")
)

// Prayer is the public prayer wall.
type Prayer struct {
	*store.Store[model.PrayerRequest]
	deps Deps
}

func NewPrayer(d Deps) *Prayer {
	return &Prayer{
		Store: store.New("prayer", func(p model.PrayerRequest) string { return p.ID },
			store.WithClone(model.PrayerRequest.Clone), store.WithLogger[model.PrayerRequest](d.Log)),
		deps: d,
	}
}

// Fetch loads the public view.
func (p *Prayer) Fetch(ctx context.Context) error {
	return refresh(ctx, p.deps, "prayer", p.Store,
		list[model.PrayerRequest](p.deps.Client, api.Call{Method: http.MethodGet, Path: "/prayer/public-view", Auth: true}))
}

// Submit posts a new request and puts the stored version at the top.
func (p *Prayer) Submit(ctx context.Context, req model.NewPrayerRequest) (model.PrayerRequest, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.PrayerRequest = strings.TrimSpace(req.PrayerRequest)
	if req.Title == "" || req.PrayerRequest == "" {
		return model.PrayerRequest{}, ErrEmptyPrayer
	}
	created, err := api.Fetch[model.PrayerRequest](ctx, p.deps.Client, api.Call{
		Method: http.MethodPost,
		Path:   "/prayer/submitPrayerRequest",
		Body:   req,
		Auth:   true,
	})
	if err == nil && created.ID == "" {
		err = &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: "submitted request came back without an id"}
	}
	p.deps.mutated(ctx, "prayer", created.ID, err)
	if err != nil {
		p.SetErr(err)
		return model.PrayerRequest{}, err
	}
	if err := p.Upsert(created); err != nil {
		return created, err
	}
	return created, nil
}

// TogglePray flips whether the current member prays for id.  The count moves
// at once and is then replaced by the backend's tally.  It returns the new
// state.
func (p *Prayer) TogglePray(ctx context.Context, id string) (bool, error) {
	user, err := p.deps.user()
	if err != nil {
		return false, err
	}
	if _, ok := p.Get(id); !ok {
		return false, ErrUnknownPrayer
	}

	pending, err := p.Begin(id, store.Update(func(cur model.PrayerRequest) model.PrayerRequest {
		return withPraying(cur, user.ID, !cur.PrayingFor(user.ID), -1)
	}))
	if err != nil {
		return false, err
	}
	toggle, err := api.Fetch[model.PrayerToggle](ctx, p.deps.Client, api.Call{
		Method: http.MethodPost,
		Path:   "/prayer/" + url.PathEscape(id) + "/pray",
		Auth:   true,
	})
	if err != nil {
		pending.Rollback()
		p.SetErr(err)
		p.deps.mutated(ctx, "prayer", id, err)
		return false, err
	}

	base, _ := pending.Base()
	who := toggle.UserID
	if who == "" {
		who = user.ID
	}
	pending.Commit(withPraying(base, who, toggle.IsPraying, toggle.PrayerCount))
	p.deps.mutated(ctx, "prayer", id, nil)
	return toggle.IsPraying, nil
}

// withPraying sets userID's membership in IsPraying.  count < 0 adjusts the
// count by the change; otherwise count is taken as authoritative.
func withPraying(req model.PrayerRequest, userID string, praying bool, count int) model.PrayerRequest {
	req = req.Clone()
	was := req.PrayingFor(userID)
	switch {
	case praying && !was:
		req.IsPraying = append(req.IsPraying, userID)
		if count < 0 {
			req.PrayerCount++
		}
	case !praying && was:
		kept := make([]string, 0, len(req.IsPraying))
		for _, u := range req.IsPraying {
			if u != userID {
				kept = append(kept, u)
			}
		}
		req.IsPraying = kept
		if count < 0 && req.PrayerCount > 0 {
			req.PrayerCount--
		}
	}
	if count >= 0 {
		req.PrayerCount = count
	}
	return req
}
