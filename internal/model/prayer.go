package model

import "time"

// PrayerRequest is a member's request shown on the public prayer wall.
// IsPraying lists the ids of members currently praying for it.
type PrayerRequest struct {
	ID            string    `json:"_id"`
	Title         string    `json:"title"`
	PrayerRequest string    `json:"prayerRequest"`
	Category      string    `json:"category,omitempty"`
	Anonymous     bool      `json:"anonymous"`
	User          *User     `json:"user,omitempty"`
	IsPraying     []string  `json:"isPraying"`
	PrayerCount   int       `json:"prayerCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PrayingFor reports whether userID is among those praying.
func (p PrayerRequest) PrayingFor(userID string) bool {
	for _, id := range p.IsPraying {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with p.
func (p PrayerRequest) Clone() PrayerRequest {
	out := p
	out.IsPraying = append([]string(nil), p.IsPraying...)
	return out
}

// NewPrayerRequest is the body of POST /prayer/submitPrayerRequest.
type NewPrayerRequest struct {
	Title         string `json:"title"`
	PrayerRequest string `json:"prayerRequest"`
	Category      string `json:"category"`
	Anonymous     bool   `json:"anonymous"`
}

// PrayerToggle is the reply of POST /prayer/{id}/pray.
type PrayerToggle struct {
	IsPraying   bool   `json:"isPraying"`
	UserID      string `json:"userId"`
	PrayerCount int    `json:"prayerCount"`
}
