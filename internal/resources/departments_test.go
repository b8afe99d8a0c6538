package resources

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/queue"
)

const (
	joinRoute  = "POST /api/departments/:id/join/:userId"
	leaveRoute = "DELETE /api/departments/:id/leave/:userId"
	deptsRoute = "GET /api/departments/getDepartments"
)

func seedDepartments(t *testing.T, e *env) *Departments {
	t.Helper()
	me := model.User{ID: e.user.ID, FirstName: e.user.FirstName, LastName: e.user.LastName}
	e.srv.SetDepartments(
		model.Department{ID: "d-choir", Name: "Choir", Description: "Sunday worship team", Members: []model.User{{ID: "u-other", FirstName: "Yaw"}}},
		model.Department{ID: "d-ushers", Name: "Ushers", Description: "Welcome and seating", Members: []model.User{me}},
		model.Department{ID: "d-media", Name: "Media", Description: "Sound and livestream"},
	)
	d := NewDepartments(e.deps)
	t.Cleanup(d.Close)
	require.NoError(t, d.RefreshAll(context.Background()))
	return d
}

func ids(deps []model.Department) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.ID)
	}
	return out
}

func TestRefreshAllLoadsBothViews(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)

	assert.Equal(t, []string{"d-choir", "d-ushers", "d-media"}, ids(d.Items()))
	assert.Equal(t, []string{"d-ushers"}, ids(d.Mine.Items()))
	assert.True(t, d.IsMember("d-ushers"))
	assert.False(t, d.IsMember("d-choir"))
}

func TestJoinUpdatesBothViews(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)

	require.NoError(t, d.Join(context.Background(), "d-choir"))

	choir, _ := d.Get("d-choir")
	assert.True(t, choir.HasMember(e.user.ID))
	assert.ElementsMatch(t, []string{"d-ushers", "d-choir"}, ids(d.Mine.Items()))
	server, _ := e.srv.Department("d-choir")
	assert.True(t, server.HasMember(e.user.ID))
	assert.Equal(t, queue.ActionMutated, e.lastEvent(t).Action)
}

func TestLeaveRemovesFromMine(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)

	require.NoError(t, d.Leave(context.Background(), "d-ushers"))

	ushers, _ := d.Get("d-ushers")
	assert.False(t, ushers.HasMember(e.user.ID))
	assert.Empty(t, d.Mine.Items())
	assert.False(t, d.IsMember("d-ushers"))
}

func TestJoinFailureRollsBackBothViews(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)
	all, mine := d.Items(), d.Mine.Items()

	e.srv.Fail(joinRoute, http.StatusInternalServerError, "try later", 1)
	err := d.Join(context.Background(), "d-media")
	require.Error(t, err)

	assert.Empty(t, cmp.Diff(all, d.Items()))
	assert.Empty(t, cmp.Diff(mine, d.Mine.Items()))
	assert.Equal(t, err, d.Snapshot().Err)
	ev := e.lastEvent(t)
	assert.Equal(t, queue.ActionRolledBack, ev.Action)
	assert.Equal(t, "d-media", ev.ID)
}

func TestLeaveFailureRestoresPosition(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)
	require.NoError(t, d.Join(context.Background(), "d-choir"))
	mine := d.Mine.Items()

	e.srv.Fail(leaveRoute, http.StatusForbidden, "You can only change your own membership", 1)
	require.Error(t, d.Leave(context.Background(), "d-ushers"))
	assert.Empty(t, cmp.Diff(mine, d.Mine.Items()))
}

func TestMembershipGuardsStayLocal(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)
	ctx := context.Background()

	assert.ErrorIs(t, d.Join(ctx, "d-ushers"), ErrAlreadyMember)
	assert.ErrorIs(t, d.Leave(ctx, "d-choir"), ErrNotMember)
	assert.ErrorIs(t, d.Join(ctx, "d-missing"), ErrNoDepartment)
	assert.Zero(t, e.srv.Calls(joinRoute))
	assert.Zero(t, e.srv.Calls(leaveRoute))
}

func TestJoinGuardTrustsMyDepartments(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)

	// the full listing may omit members; my-departments still says so
	media, _ := d.Get("d-media")
	require.NoError(t, d.Mine.Upsert(media))

	assert.True(t, d.IsMember("d-media"))
	assert.ErrorIs(t, d.Join(context.Background(), "d-media"), ErrAlreadyMember)
	assert.Zero(t, e.srv.Calls(joinRoute))
}

func TestRefreshAllSkipsOverlappingCall(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)
	base := e.srv.Calls(deptsRoute)

	release := e.srv.Hold(deptsRoute)
	done := make(chan error, 1)
	go func() { done <- d.RefreshAll(context.Background()) }()
	waitFor(t, e.srv, deptsRoute, base+1)

	assert.NoError(t, d.RefreshAll(context.Background()))
	release()
	require.NoError(t, <-done)
	assert.Equal(t, base+1, e.srv.Calls(deptsRoute))
}

func TestDepartmentFilterAndNames(t *testing.T) {
	e := newEnv(t)
	d := seedDepartments(t, e)

	assert.Equal(t, []string{"d-media"}, ids(d.Filter("LIVESTREAM")))
	assert.Len(t, d.Filter("  "), 3)

	names, err := d.FetchNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.DepartmentName{{ID: "d-choir", Name: "Choir"}, {ID: "d-ushers", Name: "Ushers"}, {ID: "d-media", Name: "Media"}}, names)
}
