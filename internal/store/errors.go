package store

import "errors"

// ErrSuperseded is returned by FetchAll when a newer fetch was issued before
// this one resolved; its result was discarded.
var ErrSuperseded = errors.New("store: superseded by a newer fetch")

// ErrDisposed is returned by every operation after Dispose.
var ErrDisposed = errors.New("store: disposed")
