package model

// Credential is the persisted proof of a login: the confirmed user and the
// bearer token the backend issued for them.  The token may be empty when the
// backend relies on cookies only.
type Credential struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// PersistedAuth mirrors the "auth-storage" entry kept in durable storage.  It
// is written together with the bare token key and removed together with it.
type PersistedAuth struct {
	User            *User  `json:"user"`
	Token           string `json:"token"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is what POST /auth/login answers on success.  Success and
// Message follow the backend's envelope convention.
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.  ConfirmPassword is
// checked locally and never sent.
type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
	Department      string `json:"department,omitempty"`
	Position        string `json:"position,omitempty"`
	DateOfBirth     string `json:"dateOfBirth,omitempty"`
}

// Envelope is the generic {success, message} wrapper several endpoints use.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
