package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/logging"
	"github.com/iliyamo/chapel-client/internal/model"
)

var (
	// ErrMissingFields is returned before any request when a required field
	// is blank.
	ErrMissingFields = errors.New("please fill all required fields")
	// ErrPasswordMismatch is returned by Register when the confirmation does
	// not match.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrNoToken means the backend accepted the login but issued no token.
	ErrNoToken = errors.New("login succeeded but no token was issued")
)

// Auth runs the credential lifecycle flows.  The credential is only stored
// after the backend has confirmed the new token's identity.
type Auth struct {
	client *api.Client
	holder *credential.Holder
	log    *zap.Logger
}

func NewAuth(client *api.Client, holder *credential.Holder, log *zap.Logger) *Auth {
	return &Auth{client: client, holder: holder, log: logging.OrNop(log)}
}

// Login exchanges email and password for a token, confirms it with the
// identity endpoint and stores the credential.
func (a *Auth) Login(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.User{}, ErrMissingFields
	}

	resp, err := api.Fetch[model.LoginResponse](ctx, a.client, api.Call{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   model.LoginRequest{Email: email, Password: password},
	})
	if err != nil {
		return model.User{}, err
	}
	if !resp.Success {
		return model.User{}, &api.Error{Kind: api.ValidationError, Status: http.StatusOK, Message: orDefault(resp.Message, "login failed")}
	}
	if resp.Token == "" {
		return model.User{}, ErrNoToken
	}

	user, err := api.Fetch[model.User](ctx, a.client, api.Call{
		Method:   http.MethodGet,
		Path:     MePath,
		Auth:     true,
		Token:    resp.Token,
		SkipGate: true,
	})
	if err != nil {
		return model.User{}, err
	}
	if user.ID == "" {
		return model.User{}, &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: "identity check returned no user"}
	}

	a.holder.Set(ctx, user, resp.Token)
	a.log.Info("logged in", zap.String("user_id", user.ID))
	return user, nil
}

// Logout tells the backend and clears the local credential whatever the
// backend answers.  The returned error only reports the server side.
func (a *Auth) Logout(ctx context.Context) error {
	var err error
	if _, ok := a.holder.Token(); ok {
		err = a.client.Request(ctx, api.Call{Method: http.MethodPost, Path: "/auth/logout", Auth: true, SkipGate: true}).Failure()
		if err != nil {
			a.log.Warn("logout failed on server", zap.Error(err))
		}
	}
	a.holder.Clear(ctx)
	return err
}

// Register creates an account.  The confirmation is checked locally and
// never sent.  It returns the backend's message.
func (a *Auth) Register(ctx context.Context, req model.RegisterRequest) (string, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" {
		return "", ErrMissingFields
	}
	if req.Password != req.ConfirmPassword {
		return "", ErrPasswordMismatch
	}

	env, err := api.Fetch[model.Envelope](ctx, a.client, api.Call{Method: http.MethodPost, Path: "/auth/register", Body: req})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", &api.Error{Kind: api.ValidationError, Status: http.StatusOK, Message: orDefault(env.Message, "user registration failed")}
	}
	return env.Message, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
