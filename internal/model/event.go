package model

import "time"

// Event is a chapel calendar entry.  Time is the free-form display time the
// backend stores next to the date (e.g. "10:00 AM").
type Event struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	Location    string    `json:"location,omitempty"`
	Date        time.Time `json:"date"`
	Time        string    `json:"time,omitempty"`
}
