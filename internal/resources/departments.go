package resources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

var (
	ErrAlreadyMember = errors.New("you are already a member of this department")
	ErrNotMember     = errors.New("you are not a member of this department")
	ErrNoDepartment  = errors.New("department not found")
)

// Departments keeps two views of membership: every department with its
// members, and the departments the current member belongs to.  Join and
// Leave update both optimistically and roll both back together.
type Departments struct {
	*store.Store[model.Department]
	Mine *store.Store[model.Department]

	deps       Deps
	refreshing atomic.Bool
}

func NewDepartments(d Deps) *Departments {
	id := func(dep model.Department) string { return dep.ID }
	return &Departments{
		Store: store.New("departments", id, store.WithClone(model.Department.Clone), store.WithLogger[model.Department](d.Log)),
		Mine:  store.New("user-departments", id, store.WithClone(model.Department.Clone), store.WithLogger[model.Department](d.Log)),
		deps:  d,
	}
}

// Fetch loads every department with its members.
func (d *Departments) Fetch(ctx context.Context) error {
	return refresh(ctx, d.deps, "departments", d.Store,
		list[model.Department](d.deps.Client, api.Call{Method: http.MethodGet, Path: "/departments/getDepartments", Auth: true}))
}

// FetchNames loads the public names listing used on the registration form.
// It needs no session.
func (d *Departments) FetchNames(ctx context.Context) ([]model.DepartmentName, error) {
	return api.Fetch[[]model.DepartmentName](ctx, d.deps.Client, api.Call{Method: http.MethodGet, Path: "/departments/getAllDepartmentsName"})
}

// FetchMine loads the departments userID belongs to.  The backend answers
// either a bare array or {data: [...]}.
func (d *Departments) FetchMine(ctx context.Context, userID string) error {
	return refresh(ctx, d.deps, "user-departments", d.Mine, func(ctx context.Context) ([]model.Department, error) {
		res := d.deps.Client.Request(ctx, api.Call{
			Method: http.MethodGet,
			Path:   "/departments/fetch-User-Departments/" + url.PathEscape(userID),
			Auth:   true,
		})
		if wrapped, err := api.Decode[struct {
			Data []model.Department `json:"data"`
		}](res); err == nil && wrapped.Data != nil {
			return wrapped.Data, nil
		}
		return api.Decode[[]model.Department](res)
	})
}

// RefreshAll reloads both views in parallel.  A call made while another
// refresh runs returns nil immediately.
func (d *Departments) RefreshAll(ctx context.Context) error {
	if !d.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer d.refreshing.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Fetch(gctx) })
	if u, err := d.deps.user(); err == nil {
		g.Go(func() error { return d.FetchMine(gctx, u.ID) })
	}
	return g.Wait()
}

// Join adds the current member to departmentID.
func (d *Departments) Join(ctx context.Context, departmentID string) error {
	return d.change(ctx, departmentID, true)
}

// Leave removes the current member from departmentID.
func (d *Departments) Leave(ctx context.Context, departmentID string) error {
	return d.change(ctx, departmentID, false)
}

func (d *Departments) change(ctx context.Context, departmentID string, join bool) error {
	user, err := d.deps.user()
	if err != nil {
		return err
	}
	dep, ok := d.Get(departmentID)
	if !ok {
		return ErrNoDepartment
	}
	belongs := d.IsMember(departmentID)
	if join && belongs {
		return ErrAlreadyMember
	}
	if !join && !belongs {
		return ErrNotMember
	}

	who := model.User{ID: user.ID, FirstName: user.FirstName, LastName: user.LastName}
	all, err := d.Begin(departmentID, store.Update(func(cur model.Department) model.Department {
		return withMembership(cur, who, join)
	}))
	if err != nil {
		return err
	}
	mine, err := d.Mine.Begin(departmentID, func(cur model.Department, present bool) (model.Department, bool) {
		if !join {
			return cur, false
		}
		if !present {
			cur = dep.Clone()
		}
		return withMembership(cur, who, true), true
	})
	if err != nil {
		all.Rollback()
		return err
	}

	call := api.Call{Method: http.MethodPost, Path: "/departments/" + url.PathEscape(departmentID) + "/join/" + url.PathEscape(user.ID), Auth: true}
	if !join {
		call.Method = http.MethodDelete
		call.Path = "/departments/" + url.PathEscape(departmentID) + "/leave/" + url.PathEscape(user.ID)
	}
	resp, err := api.Fetch[struct {
		Department model.Department `json:"department"`
	}](ctx, d.deps.Client, call)

	resource := "departments"
	if err != nil {
		all.Rollback()
		mine.Rollback()
		d.SetErr(err)
		d.deps.mutated(ctx, resource, departmentID, err)
		return err
	}
	if resp.Department.ID == departmentID {
		all.Commit(resp.Department)
		if join {
			mine.Commit(resp.Department)
		} else {
			mine.Confirm()
		}
	} else {
		all.Confirm()
		mine.Confirm()
	}
	d.deps.mutated(ctx, resource, departmentID, nil)
	return nil
}

func withMembership(dep model.Department, member model.User, join bool) model.Department {
	if join {
		if !dep.HasMember(member.ID) {
			dep.Members = append(dep.Members, member)
		}
		return dep
	}
	kept := make([]model.User, 0, len(dep.Members))
	for _, m := range dep.Members {
		if m.ID != member.ID {
			kept = append(kept, m)
		}
	}
	dep.Members = kept
	return dep
}

// IsMember reports whether the current member belongs to departmentID.
func (d *Departments) IsMember(departmentID string) bool {
	if _, ok := d.Mine.Get(departmentID); ok {
		return true
	}
	u, err := d.deps.user()
	if err != nil {
		return false
	}
	dep, ok := d.Get(departmentID)
	return ok && dep.HasMember(u.ID)
}

// Filter returns the departments whose name or description contains
// search, ignoring case.  An empty search returns everything.
func (d *Departments) Filter(search string) []model.Department {
	search = strings.ToLower(strings.TrimSpace(search))
	var out []model.Department
	for _, dep := range d.Items() {
		if search == "" || contains(dep.Name, search) || contains(dep.Description, search) {
			out = append(out, dep)
		}
	}
	return out
}

// Close releases both stores.
func (d *Departments) Close() {
	d.Dispose()
	d.Mine.Dispose()
}
