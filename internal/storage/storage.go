package storage

import "context"

// Keys of the persisted credential.  TokenKey holds the bare bearer string,
// AuthKey the JSON encoded model.PersistedAuth.
const (
	TokenKey = "token"
	AuthKey  = "auth-storage"
)

// Storage is a string key/value store that survives process restarts.
// Implementations must be safe for concurrent use.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Remove succeeds when the key is already absent.
	Remove(ctx context.Context, key string) error
	Close() error
}
