package model

import "time"

// User is the identity returned by GET /auth/me and embedded in most other
// resources (nominees, department members, prayer authors).  Only the fields
// the client reads are declared; unknown fields in the payload are ignored.
//
// Fields:
//  ID          – backend identifier (Mongo style "_id").
//  FirstName   – given name.
//  LastName    – family name.
//  Email       – login address.
//  Position    – role within the church (e.g. usher, choir lead).
//  Department  – name of the user's primary department.
//  ProfileImg  – URL of the avatar.
//  DateOfBirth – birthday, nil when the user never provided one.
type User struct {
	ID          string     `json:"_id"`
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	Email       string     `json:"email,omitempty"`
	Position    string     `json:"position,omitempty"`
	Department  string     `json:"department,omitempty"`
	ProfileImg  string     `json:"profileImg,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// FullName joins first and last name, tolerating either being empty.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ProfileUpdate is the body of PUT /users/updateProfile.  Zero values are
// omitted so the backend keeps the stored value.
type ProfileUpdate struct {
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	Position    string     `json:"position,omitempty"`
	Department  string     `json:"department,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// PasswordChange is the body of PUT /users/changePassword.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ImageUpload is the reply of PUT /users/uploadProfileImg.
type ImageUpload struct {
	Message    string `json:"message,omitempty"`
	ProfileImg string `json:"profileImg"`
}
