package apitest

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// jwtAuth validates the Bearer token and injects the caller's id into the
// request context under "user_id".  Expired, revoked or unknown-user tokens
// are answered with 401 the way the chapel backend does.
func (s *Server) jwtAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// A valid header starts with "Bearer " followed by the JWT.
		auth := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Not authorized, no token"})
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		id, err := parseToken(raw)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Not authorized, token failed"})
		}

		// A logged out token or a deleted account is as good as no token.
		s.mu.Lock()
		revoked := s.revoked[raw]
		_, known := s.accounts[id]
		s.mu.Unlock()
		if revoked || !known {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Not authorized"})
		}

		c.Set("user_id", id)
		c.Set("token", raw)
		return next(c)
	}
}

// userID returns the caller set by jwtAuth, or "guest".
func userID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	return "guest"
}
