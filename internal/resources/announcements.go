package resources

import (
	"context"
	"net/http"
	"strings"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

// CategoryAll matches every announcement or event category.
const CategoryAll = "all"

type Announcements struct {
	*store.Store[model.Announcement]
	deps Deps
}

func NewAnnouncements(d Deps) *Announcements {
	return &Announcements{
		Store: store.New("announcements", func(a model.Announcement) string { return a.ID }, store.WithLogger[model.Announcement](d.Log)),
		deps:  d,
	}
}

func (a *Announcements) Fetch(ctx context.Context) error {
	return refresh(ctx, a.deps, "announcements", a.Store,
		list[model.Announcement](a.deps.Client, api.Call{Method: http.MethodGet, Path: "/announcements/getUserAnnouncements", Auth: true}))
}

// Filter splits the announcements matching search (title or content,
// ignoring case) and category into pinned and regular, keeping server
// order.  An empty category or CategoryAll matches all.
func (a *Announcements) Filter(search, category string) (pinned, regular []model.Announcement) {
	search = strings.ToLower(strings.TrimSpace(search))
	for _, an := range a.Items() {
		if search != "" && !contains(an.Title, search) && !contains(an.Content, search) {
			continue
		}
		if category != "" && category != CategoryAll && an.Category != category {
			continue
		}
		if an.Pinned {
			pinned = append(pinned, an)
		} else {
			regular = append(regular, an)
		}
	}
	return pinned, regular
}
