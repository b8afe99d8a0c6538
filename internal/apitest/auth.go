package apitest

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chapel-client/internal/model"
)

type registerReq struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Department  string `json:"department"`
	Position    string `json:"position"`
	DateOfBirth string `json:"dateOfBirth"`

	// must never arrive; the client checks it locally
	ConfirmPassword *string `json:"confirmPassword"`
}

// register creates a member.  Like the chapel backend it does not log the
// new member in.
func (s *Server) register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	if req.ConfirmPassword != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "unexpected field confirmPassword"})
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "Please fill all required fields"})
	}

	s.mu.Lock()
	_, taken := s.byEmail[email]
	s.mu.Unlock()
	if taken {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "User already exists"})
	}

	u := s.AddUser(model.User{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      email,
		Department: req.Department,
		Position:   req.Position,
	}, req.Password)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "User registered successfully", "data": u})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login verifies the password and returns a token and the user.
func (s *Server) login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "Email and password are required"})
	}

	s.mu.Lock()
	var acct account
	id, ok := s.byEmail[email]
	if ok {
		acct = *s.accounts[id]
	}
	ttl := s.tokenTTL
	s.mu.Unlock()
	if !ok || !verifyPassword(acct.hash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid email or password"})
	}

	token, err := issueToken(id, ttl)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "issue token failed"})
	}
	u := acct.user
	return c.JSON(http.StatusOK, model.LoginResponse{Success: true, Message: "Login successful", Token: token, User: &u})
}

// logout revokes the presented token.
func (s *Server) logout(c echo.Context) error {
	s.Revoke(c.Get("token").(string))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logged out successfully"})
}

// me returns the caller as a bare user object.
func (s *Server) me(c echo.Context) error {
	s.mu.Lock()
	a, ok := s.accounts[userID(c)]
	var u model.User
	if ok {
		u = a.user
	}
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "User not found"})
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) updateProfile(c echo.Context) error {
	var req model.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[userID(c)]
	if req.FirstName != "" {
		a.user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		a.user.LastName = req.LastName
	}
	if req.Position != "" {
		a.user.Position = req.Position
	}
	if req.Department != "" {
		a.user.Department = req.Department
	}
	if req.DateOfBirth != nil {
		dob := *req.DateOfBirth
		a.user.DateOfBirth = &dob
	}
	return c.JSON(http.StatusOK, a.user)
}

func (s *Server) changePassword(c echo.Context) error {
	var req model.PasswordChange
	if err := c.Bind(&req); err != nil || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "New password is required"})
	}
	s.mu.Lock()
	a := s.accounts[userID(c)]
	hash := a.hash
	s.mu.Unlock()
	if !verifyPassword(hash, req.CurrentPassword) {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Current password is incorrect"})
	}
	next, err := hashPassword(req.NewPassword)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "hash failed"})
	}
	s.mu.Lock()
	a.hash = next
	s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Password updated successfully"})
}

// uploadProfileImg accepts the multipart "image" field and stores the path it
// would be served under.
func (s *Server) uploadProfileImg(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "No image uploaded"})
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Only image files are allowed"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unreadable upload"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "empty upload"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[userID(c)]
	a.user.ProfileImg = "uploads/profile/" + a.user.ID + "-" + path.Base(fh.Filename)
	s.images[a.user.ID] = data
	return c.JSON(http.StatusOK, model.ImageUpload{Message: "Profile image updated", ProfileImg: a.user.ProfileImg})
}
