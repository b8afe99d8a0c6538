package resources

import (
	"context"
	"net/http"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

const dashboardKey = "stats"

// Dashboard holds the home page counters as a single-item store.
type Dashboard struct {
	*store.Store[model.DashboardStats]
	deps Deps
}

func NewDashboard(d Deps) *Dashboard {
	return &Dashboard{
		Store: store.New("dashboard", func(model.DashboardStats) string { return dashboardKey }, store.WithLogger[model.DashboardStats](d.Log)),
		deps:  d,
	}
}

// Fetch reloads the counters.  A reply without success keeps the last
// counters and records the error.
func (d *Dashboard) Fetch(ctx context.Context) error {
	return refresh(ctx, d.deps, "dashboard", d.Store, func(ctx context.Context) ([]model.DashboardStats, error) {
		resp, err := api.Fetch[model.DashboardResponse](ctx, d.deps.Client, api.Call{Method: http.MethodGet, Path: "/dashboard/stats", Auth: true})
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: orDefault(resp.Message, "failed to load stats")}
		}
		return []model.DashboardStats{resp.Data}, nil
	})
}

// Stats returns the loaded counters.
func (d *Dashboard) Stats() (model.DashboardStats, bool) {
	return d.Get(dashboardKey)
}
