package model

import "time"

// Birthday is one entry of GET /users/getBirthdays.  The backend computes the
// IsToday/IsThisWeek/IsThisMonth flags relative to its own clock.
type Birthday struct {
	ID          string    `json:"_id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Initials    string    `json:"initials,omitempty"`
	Department  string    `json:"department,omitempty"`
	Position    string    `json:"position,omitempty"`
	ProfileImg  string    `json:"profileImg,omitempty"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Age         int       `json:"age,omitempty"`
	IsToday     bool      `json:"isToday"`
	IsThisWeek  bool      `json:"isThisWeek"`
	IsThisMonth bool      `json:"isThisMonth"`
}

// BirthdayList is the envelope of GET /users/getBirthdays.
type BirthdayList struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Birthdays []Birthday `json:"birthdays"`
}
