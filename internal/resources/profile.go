package resources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

const (
	minPasswordLen = 4
	maxImageBytes  = 2 << 20
)

var (
	ErrEmptyPassword    = errors.New("current and new password are required")
	ErrPasswordTooShort = errors.New("new password must be at least 4 characters")
	ErrSamePassword     = errors.New("new password must differ from the current one")
	ErrNotImage         = errors.New("please select an image file")
	ErrImageTooLarge    = errors.New("image size should be less than 2MB")
)

// Profile is the signed-in member's own record, held as a single-item store.
type Profile struct {
	*store.Store[model.User]
	deps Deps
}

func NewProfile(d Deps) *Profile {
	return &Profile{
		Store: store.New("profile", func(u model.User) string { return u.ID }, store.WithLogger[model.User](d.Log)),
		deps:  d,
	}
}

// Fetch reloads the member from GET /auth/me.
func (p *Profile) Fetch(ctx context.Context) error {
	return refresh(ctx, p.deps, "profile", p.Store, func(ctx context.Context) ([]model.User, error) {
		u, err := api.Fetch[model.User](ctx, p.deps.Client, api.Call{Method: http.MethodGet, Path: "/auth/me", Auth: true})
		if err != nil {
			return nil, err
		}
		return []model.User{u}, nil
	})
}

// Me returns the loaded profile.
func (p *Profile) Me() (model.User, bool) {
	items := p.Items()
	if len(items) == 0 {
		return model.User{}, false
	}
	return items[0], true
}

// Update applies upd optimistically, then stores the backend's copy and
// refreshes the persisted credential so the session shows the new name.
func (p *Profile) Update(ctx context.Context, upd model.ProfileUpdate) (model.User, error) {
	me, err := p.deps.user()
	if err != nil {
		return model.User{}, err
	}
	if _, ok := p.Get(me.ID); !ok {
		if err := p.Upsert(me); err != nil {
			return model.User{}, err
		}
	}
	upd.FirstName = strings.TrimSpace(upd.FirstName)
	upd.LastName = strings.TrimSpace(upd.LastName)

	user, err := p.Mutate(ctx, me.ID, store.Update(func(u model.User) model.User { return applyProfile(u, upd) }),
		func(ctx context.Context) (model.User, error) {
			u, err := api.Fetch[model.User](ctx, p.deps.Client, api.Call{
				Method: http.MethodPut,
				Path:   "/users/updateProfile",
				Body:   upd,
				Auth:   true,
			})
			if err == nil && u.ID != me.ID {
				err = &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: "profile update returned another user"}
			}
			return u, err
		})
	p.deps.mutated(ctx, "profile", me.ID, err)
	if err != nil {
		return model.User{}, err
	}
	if p.deps.Holder != nil {
		if token, ok := p.deps.Holder.Token(); ok {
			p.deps.Holder.Set(ctx, user, token)
		}
	}
	return user, nil
}

// UploadImage sends data as the member's avatar.  The profile stays pending
// until the backend returns the stored path, which is then committed and
// persisted with the credential like Update does.
func (p *Profile) UploadImage(ctx context.Context, filename string, data []byte) (model.User, error) {
	me, err := p.deps.user()
	if err != nil {
		return model.User{}, err
	}
	contentType := http.DetectContentType(data)
	if len(data) == 0 || !strings.HasPrefix(contentType, "image/") {
		return model.User{}, ErrNotImage
	}
	if len(data) > maxImageBytes {
		return model.User{}, ErrImageTooLarge
	}
	body, formType, err := imageForm(filename, contentType, data)
	if err != nil {
		return model.User{}, err
	}
	if _, ok := p.Get(me.ID); !ok {
		if err := p.Upsert(me); err != nil {
			return model.User{}, err
		}
	}

	pending, err := p.Begin(me.ID, store.Update(func(u model.User) model.User { return u }))
	if err != nil {
		return model.User{}, err
	}
	up, err := api.Fetch[model.ImageUpload](ctx, p.deps.Client, api.Call{
		Method:      http.MethodPut,
		Path:        "/users/uploadProfileImg",
		Raw:         body,
		ContentType: formType,
		Auth:        true,
	})
	if err == nil && up.ProfileImg == "" {
		err = &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: orDefault(up.Message, "upload returned no image")}
	}
	if err != nil {
		pending.Rollback()
		p.SetErr(err)
		p.deps.mutated(ctx, "profile", me.ID, err)
		return model.User{}, err
	}

	user, _ := pending.Base()
	user.ProfileImg = up.ProfileImg
	pending.Commit(user)
	p.deps.mutated(ctx, "profile", me.ID, nil)
	if p.deps.Holder != nil {
		if token, ok := p.deps.Holder.Token(); ok {
			p.deps.Holder.Set(ctx, user, token)
		}
	}
	return user, nil
}

// imageForm encodes data as the "image" field of a multipart form.
func imageForm(filename, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func applyProfile(u model.User, upd model.ProfileUpdate) model.User {
	if upd.FirstName != "" {
		u.FirstName = upd.FirstName
	}
	if upd.LastName != "" {
		u.LastName = upd.LastName
	}
	if upd.Position != "" {
		u.Position = upd.Position
	}
	if upd.Department != "" {
		u.Department = upd.Department
	}
	if upd.DateOfBirth != nil {
		dob := *upd.DateOfBirth
		u.DateOfBirth = &dob
	}
	return u
}

// ChangePassword replaces the member's password.  It returns the backend's
// confirmation message.
func (p *Profile) ChangePassword(ctx context.Context, change model.PasswordChange) (string, error) {
	if change.CurrentPassword == "" || change.NewPassword == "" {
		return "", ErrEmptyPassword
	}
	if len(change.NewPassword) < minPasswordLen {
		return "", ErrPasswordTooShort
	}
	if change.NewPassword == change.CurrentPassword {
		return "", ErrSamePassword
	}
	env, err := api.Fetch[model.Envelope](ctx, p.deps.Client, api.Call{
		Method: http.MethodPut,
		Path:   "/users/changePassword",
		Body:   change,
		Auth:   true,
	})
	if err != nil {
		return "", err
	}
	return orDefault(env.Message, "Password updated"), nil
}
