package model

import "time"

// Announcement is a notice published to members.  Pinned announcements are
// listed ahead of regular ones.
type Announcement struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	FullContent string    `json:"fullContent,omitempty"`
	Category    string    `json:"category"`
	Author      string    `json:"author,omitempty"`
	Image       string    `json:"image,omitempty"`
	Pinned      bool      `json:"pinned"`
	Date        time.Time `json:"date"`
}
