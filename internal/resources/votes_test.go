package resources

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/countdown"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/queue"
)

const voteRoute = "POST /api/votes/voteUser"

func nominees() []model.Nominee {
	return []model.Nominee{
		{ID: "n1", User: model.User{ID: "u-kofi", FirstName: "Kofi"}, VoteCount: 3},
		{ID: "n2", User: model.User{ID: "u-esi", FirstName: "Esi"}, VoteCount: 1},
	}
}

// seedVotes installs an open, an ended and a future category around the
// env clock and loads them.
func seedVotes(t *testing.T, e *env) *Votes {
	t.Helper()
	now := e.clock.Now()
	e.srv.SetVotes(
		model.Vote{ID: "v-ended", Category: "Usher of the week", StartTime: now.Add(-48 * time.Hour), EndTime: now.Add(-24 * time.Hour), Nominees: nominees()},
		model.Vote{ID: "v-open", Category: "Worker of the week", StartTime: now.Add(-time.Hour), EndTime: now.Add(65 * time.Second), Nominees: nominees()},
		model.Vote{ID: "v-soon", Category: "Singer of the week", StartTime: now.Add(time.Hour), EndTime: now.Add(48 * time.Hour), Nominees: nominees()},
	)
	v := NewVotes(e.deps, countdown.New(countdown.WithClock(e.clock)))
	t.Cleanup(v.Close)
	require.NoError(t, v.FetchCurrent(context.Background()))
	return v
}

func recvTick(t *testing.T, ch <-chan countdown.Remaining) countdown.Remaining {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no countdown tick")
		return countdown.Remaining{}
	}
}

func TestFetchCurrentSelectsOpenVote(t *testing.T) {
	e := newEnv(t)
	v := seedVotes(t, e)

	sel, ok := v.Selected()
	require.True(t, ok)
	assert.Equal(t, "v-open", sel.ID)
	assert.Len(t, v.Items(), 3)

	ev := e.lastEvent(t)
	assert.Equal(t, "votes", ev.Resource)
	assert.Equal(t, queue.ActionFetched, ev.Action)
	assert.Equal(t, 3, ev.Count)
}

func TestVoteCountdownFollowsClock(t *testing.T) {
	e := newEnv(t)
	ticks := make(chan countdown.Remaining, 8)
	now := e.clock.Now()
	e.srv.SetVotes(model.Vote{ID: "v-open", StartTime: now.Add(-time.Hour), EndTime: now.Add(65 * time.Second), Nominees: nominees()})
	v := NewVotes(e.deps, countdown.New(countdown.WithClock(e.clock)))
	t.Cleanup(v.Close)
	v.OnTick(func(r countdown.Remaining) { ticks <- r })

	require.NoError(t, v.FetchCurrent(context.Background()))
	assert.Equal(t, "1m 5s", recvTick(t, ticks).String())

	e.clock.Advance(time.Second)
	assert.Equal(t, "1m 4s", recvTick(t, ticks).String())

	e.clock.Advance(64 * time.Second)
	r := recvTick(t, ticks)
	assert.True(t, r.Ended)
	assert.Equal(t, countdown.EndedText, r.String())

	got, ok := v.Remaining()
	require.True(t, ok)
	assert.True(t, got.Ended)
	assert.False(t, v.CanVote("v-open"))
}

func TestNoOpenVoteStopsCountdown(t *testing.T) {
	e := newEnv(t)
	v := seedVotes(t, e)
	require.Eventually(t, func() bool { _, ok := v.Remaining(); return ok }, 5*time.Second, 5*time.Millisecond)

	e.srv.SetVotes(model.Vote{ID: "v-ended", StartTime: e.clock.Now().Add(-2 * time.Hour), EndTime: e.clock.Now().Add(-time.Hour)})
	require.NoError(t, v.FetchCurrent(context.Background()))

	_, ok := v.Selected()
	assert.False(t, ok)
	_, ok = v.Remaining()
	assert.False(t, ok)
	assert.Zero(t, e.clock.Timers())
}

func TestSelectEndedVoteShowsEnded(t *testing.T) {
	e := newEnv(t)
	v := seedVotes(t, e)

	require.NoError(t, v.Select("v-ended"))
	require.Eventually(t, func() bool {
		r, ok := v.Remaining()
		return ok && r.Ended
	}, 5*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, v.Select("missing"), ErrUnknownVote)
}

func TestVoteGuardsStayLocal(t *testing.T) {
	e := newEnv(t)
	v := seedVotes(t, e)
	ctx := context.Background()

	cases := []struct {
		vote, nominee string
		want          error
	}{
		{"v-ended", "n1", ErrVotingEnded},
		{"v-soon", "n1", ErrVotingNotStarted},
		{"v-open", "nobody", ErrUnknownNominee},
		{"missing", "n1", ErrUnknownVote},
	}
	for _, c := range cases {
		_, err := v.SubmitVote(ctx, c.vote, c.nominee)
		assert.ErrorIs(t, err, c.want, c.vote)
	}
	assert.Zero(t, e.srv.Calls(voteRoute))
}

func TestSubmitVoteConfirmedByBackend(t *testing.T) {
	e := newEnv(t)
	v := seedVotes(t, e)
	ctx := context.Background()
	require.True(t, v.CanVote("v-open"))

	got, err := v.SubmitVote(ctx, "v-open", "n2")
	require.NoError(t, err)
	assert.True(t, got.UserHasVoted)
	assert.Equal(t, "n2", got.UserVoteID)
	assert.Equal(t, 2, got.Nominees[1].VoteCount)

	stored, _ := v.Get("v-open")
	assert.Empty(t, cmp.Diff(got, stored))
	assert.False(t, v.CanVote("v-open"))

	_, err = v.SubmitVote(ctx, "v-open", "n1")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Equal(t, 1, e.srv.Calls(voteRoute))

	ev := e.lastEvent(t)
	assert.Equal(t, queue.ActionMutated, ev.Action)
	assert.Equal(t, "v-open", ev.ID)
	assert.Equal(t, e.user.ID, ev.UserID)
}

func TestSubmitVoteRollsBackExactly(t *testing.T) {
	e := newEnv(t)
	v := seedVotes(t, e)
	before, _ := v.Get("v-open")

	e.srv.Fail(voteRoute, http.StatusInternalServerError, "database unavailable", 1)
	release := e.srv.Hold(voteRoute)
	done := make(chan error, 1)
	go func() {
		_, err := v.SubmitVote(context.Background(), "v-open", "n1")
		done <- err
	}()
	waitFor(t, e.srv, voteRoute, 1)

	during, _ := v.Get("v-open")
	assert.Equal(t, before.Nominees[0].VoteCount+1, during.Nominees[0].VoteCount)
	assert.False(t, during.UserHasVoted)
	assert.False(t, v.CanVote("v-open"))
	_, err := v.SubmitVote(context.Background(), "v-open", "n1")
	assert.ErrorIs(t, err, ErrVoteInFlight)

	release()
	err = <-done
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrServer))

	after, _ := v.Get("v-open")
	assert.Empty(t, cmp.Diff(before, after))
	assert.Equal(t, err, v.Snapshot().Err)
	assert.True(t, v.CanVote("v-open"))

	ev := e.lastEvent(t)
	assert.Equal(t, queue.ActionRolledBack, ev.Action)
	assert.Equal(t, "database unavailable", ev.Error)
}

func TestFetchWinners(t *testing.T) {
	e := newEnv(t)
	now := e.clock.Now()
	e.srv.SetVotes(
		model.Vote{ID: "v1", Category: "Worker", StartTime: now.Add(-time.Hour), EndTime: now.Add(-time.Minute), Nominees: nominees(), ResultPublished: true},
		model.Vote{ID: "v2", Category: "Usher", StartTime: now.Add(-time.Hour), EndTime: now.Add(-time.Minute), Nominees: nominees()},
	)
	v := NewVotes(e.deps, countdown.New(countdown.WithClock(e.clock)))
	t.Cleanup(v.Close)

	got, err := v.FetchWinners(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Kofi", got["v1"].User.FirstName)
	assert.Equal(t, 75, got["v1"].Percentage)
	assert.Equal(t, got, v.Winners())
}

func TestWinnerFromVote(t *testing.T) {
	tie := model.Vote{ID: "t", Nominees: []model.Nominee{{ID: "a", VoteCount: 2}, {ID: "b", VoteCount: 2}, {ID: "c", VoteCount: 2}}}
	w, ok := WinnerFromVote(tie)
	require.True(t, ok)
	assert.Equal(t, 2, w.VoteCount)
	assert.Equal(t, 33, w.Percentage)

	w, ok = WinnerFromVote(model.Vote{ID: "z", Nominees: []model.Nominee{{ID: "a"}, {ID: "b"}}})
	require.True(t, ok)
	assert.Zero(t, w.Percentage)

	_, ok = WinnerFromVote(model.Vote{ID: "empty"})
	assert.False(t, ok)

	w, _ = WinnerFromVote(model.Vote{ID: "v", Category: "Worker", Nominees: nominees()})
	assert.Equal(t, "Kofi", w.User.FirstName)
	assert.Equal(t, 75, w.Percentage)
	assert.Equal(t, "Worker", w.Category)
}
