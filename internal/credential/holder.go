// Package credential owns the current bearer token and the identity it was
// issued for.  It is the only writer of the persisted credential; every other
// component reads the token through the api client.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/logging"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/storage"
)

// Observer is told about every credential transition.  Callbacks run
// synchronously, in order, and must not call back into the Holder.
type Observer interface {
	CredentialSet(user model.User, token string)
	CredentialCleared()
}

// Holder keeps the credential in memory and mirrors it to durable storage.
// Storage failures never escape: a credential that cannot be read is treated
// as absent and one that cannot be written still lives in memory.
type Holder struct {
	store storage.Storage
	log   *zap.Logger

	op sync.Mutex // serializes Set/Clear/Load and their notifications

	mu        sync.RWMutex
	cred      *model.Credential
	user      *model.User
	observers []Observer
}

func New(store storage.Storage, log *zap.Logger) *Holder {
	return &Holder{store: store, log: logging.OrNop(log)}
}

// Observe registers o for future transitions.
func (h *Holder) Observe(o Observer) {
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

// Set stores the credential for user and notifies observers that the
// session is authenticated.
func (h *Holder) Set(ctx context.Context, user model.User, token string) {
	h.op.Lock()
	defer h.op.Unlock()

	h.mu.Lock()
	h.cred = &model.Credential{UserID: user.ID, Token: token}
	u := user
	h.user = &u
	obs := append([]Observer(nil), h.observers...)
	h.mu.Unlock()

	h.persist(ctx, user, token)
	for _, o := range obs {
		o.CredentialSet(user, token)
	}
}

// Clear forgets the credential in memory and storage and notifies observers
// that the session is unauthenticated.  Calling it repeatedly is safe.
func (h *Holder) Clear(ctx context.Context) {
	h.op.Lock()
	defer h.op.Unlock()
	h.clearLocked(ctx)
}

// Invalidate clears the credential in response to the backend rejecting
// token.  It is a no-op when a different token has been stored since the
// rejected request was sent, so a stale 401 cannot log out a fresh login.
// It reports whether the credential was cleared.
func (h *Holder) Invalidate(ctx context.Context, token string) bool {
	h.op.Lock()
	defer h.op.Unlock()

	h.mu.RLock()
	stale := h.cred != nil && token != "" && h.cred.Token != token
	h.mu.RUnlock()
	if stale {
		h.log.Debug("ignoring 401 for superseded token")
		return false
	}
	h.clearLocked(ctx)
	return true
}

func (h *Holder) clearLocked(ctx context.Context) {
	h.mu.Lock()
	h.cred = nil
	h.user = nil
	obs := append([]Observer(nil), h.observers...)
	h.mu.Unlock()

	for _, key := range []string{storage.TokenKey, storage.AuthKey} {
		if err := h.store.Remove(ctx, key); err != nil {
			h.log.Warn("credential: remove failed", zap.String("key", key), zap.Error(err))
		}
	}
	for _, o := range obs {
		o.CredentialCleared()
	}
}

// Load reads the persisted credential into memory without notifying
// observers; deciding whether it is still valid is the bootstrapper's job.
// The bare token key is authoritative: an auth entry without a token is an
// orphan and is ignored.
func (h *Holder) Load(ctx context.Context) (model.PersistedAuth, bool) {
	h.op.Lock()
	defer h.op.Unlock()

	token, err := h.store.Get(ctx, storage.TokenKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.log.Warn("credential: read failed, treating as absent", zap.Error(err))
		}
		return model.PersistedAuth{}, false
	}
	if token == "" {
		return model.PersistedAuth{}, false
	}

	auth := model.PersistedAuth{Token: token}
	if raw, err := h.store.Get(ctx, storage.AuthKey); err == nil {
		var stored model.PersistedAuth
		if json.Unmarshal([]byte(raw), &stored) == nil && stored.Token == token {
			auth.User = stored.User
		}
	}

	h.mu.Lock()
	h.cred = &model.Credential{Token: token}
	if auth.User != nil {
		h.cred.UserID = auth.User.ID
		u := *auth.User
		h.user = &u
	}
	h.mu.Unlock()
	return auth, true
}

// Token returns the current bearer token.
func (h *Holder) Token() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cred == nil || h.cred.Token == "" {
		return "", false
	}
	return h.cred.Token, true
}

// Credential returns a copy of the current credential.
func (h *Holder) Credential() (model.Credential, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cred == nil {
		return model.Credential{}, false
	}
	return *h.cred, true
}

// User returns the identity stored with the credential.
func (h *Holder) User() (model.User, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return model.User{}, false
	}
	return *h.user, true
}

func (h *Holder) persist(ctx context.Context, user model.User, token string) {
	raw, err := json.Marshal(model.PersistedAuth{User: &user, Token: token, IsAuthenticated: true})
	if err != nil {
		h.log.Warn("credential: encode failed", zap.Error(err))
		return
	}
	if err := h.store.Set(ctx, storage.TokenKey, token); err != nil {
		h.log.Warn("credential: persist token failed, keeping it in memory only", zap.Error(err))
		return
	}
	if err := h.store.Set(ctx, storage.AuthKey, string(raw)); err != nil {
		h.log.Warn("credential: persist auth entry failed", zap.Error(err))
	}
}
