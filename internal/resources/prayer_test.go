package resources

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chapel-client/internal/model"
)

const (
	prayRoute   = "POST /api/prayer/:id/pray"
	submitRoute = "POST /api/prayer/submitPrayerRequest"
)

func seedPrayer(t *testing.T, e *env) *Prayer {
	t.Helper()
	e.srv.SetPrayers(model.PrayerRequest{ID: "p1", Title: "Healing", PrayerRequest: "For my mother", IsPraying: []string{"u-other"}, PrayerCount: 1})
	p := NewPrayer(e.deps)
	t.Cleanup(p.Dispose)
	require.NoError(t, p.Fetch(context.Background()))
	return p
}

func TestTogglePray(t *testing.T) {
	e := newEnv(t)
	p := seedPrayer(t, e)
	ctx := context.Background()

	praying, err := p.TogglePray(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, praying)
	got, _ := p.Get("p1")
	assert.Equal(t, 2, got.PrayerCount)
	assert.True(t, got.PrayingFor(e.user.ID))

	praying, err = p.TogglePray(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, praying)
	got, _ = p.Get("p1")
	assert.Equal(t, 1, got.PrayerCount)
	assert.Equal(t, []string{"u-other"}, got.IsPraying)
}

func TestTogglePrayRollsBack(t *testing.T) {
	e := newEnv(t)
	p := seedPrayer(t, e)
	before, _ := p.Get("p1")

	e.srv.Fail(prayRoute, http.StatusInternalServerError, "oops", 1)
	_, err := p.TogglePray(context.Background(), "p1")
	require.Error(t, err)

	after, _ := p.Get("p1")
	assert.Empty(t, cmp.Diff(before, after))
	_, err = p.TogglePray(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownPrayer)
}

func TestSubmitPrayer(t *testing.T) {
	e := newEnv(t)
	p := seedPrayer(t, e)
	ctx := context.Background()

	_, err := p.Submit(ctx, model.NewPrayerRequest{Title: " ", PrayerRequest: "text"})
	assert.ErrorIs(t, err, ErrEmptyPrayer)
	assert.Zero(t, e.srv.Calls(submitRoute))

	created, err := p.Submit(ctx, model.NewPrayerRequest{Title: "Exams", PrayerRequest: "Pray for my finals", Category: "school"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	require.NotNil(t, created.User)
	assert.Equal(t, e.user.ID, created.User.ID)

	items := p.Items()
	require.Len(t, items, 2)
	assert.Equal(t, created.ID, items[0].ID)
}
