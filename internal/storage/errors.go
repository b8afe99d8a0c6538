// Package storage defines the durable key/value layer that keeps the
// credential across restarts.  Sentinel errors here let callers tell an
// absent key from a broken backend.
package storage

import "errors"

// ErrNotFound is returned by Get when the key has never been set or has
// been removed.
var ErrNotFound = errors.New("storage: key not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage: closed")
