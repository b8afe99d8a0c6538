// Package queue carries sync events from the resource stores to a message
// broker, and reads them back for the audit log.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// QueueName is the durable queue every event is routed to.
const QueueName = "chapel.sync"

// Actions reported by the stores.
const (
	ActionFetched    = "fetched"
	ActionFetchError = "fetch_failed"
	ActionMutated    = "mutated"
	ActionRolledBack = "rolled_back"
	ActionSession    = "session"
)

// SyncEvent describes one completed synchronization with the backend.  It
// holds enough for an audit trail without repeating the payload.
type SyncEvent struct {
	Resource string `json:"resource"`          // "votes", "departments", ...
	Action   string `json:"action"`            // one of the Action constants
	ID       string `json:"id,omitempty"`      // affected item for mutations
	UserID   string `json:"user_id,omitempty"` // acting member, when known
	Count    int    `json:"count,omitempty"`   // items after a fetch
	Error    string `json:"error,omitempty"`
	At       string `json:"at"` // RFC 3339, UTC
}

// NewEvent stamps an event with the current time.
func NewEvent(resource, action string) SyncEvent {
	return SyncEvent{Resource: resource, Action: action, At: time.Now().UTC().Format(time.RFC3339)}
}

// Line renders ev as a single audit log line.
func (ev SyncEvent) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", ev.At, ev.Resource, ev.Action)
	if ev.ID != "" {
		fmt.Fprintf(&b, " | id=%s", ev.ID)
	}
	if ev.UserID != "" {
		fmt.Fprintf(&b, " | user_id=%s", ev.UserID)
	}
	if ev.Count > 0 {
		fmt.Fprintf(&b, " | count=%d", ev.Count)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, " | error=%q", ev.Error)
	}
	return b.String()
}
