package utils // package utils provides helpers for inspecting bearer tokens on the client

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a token is opaque (not a JWT).  Opaque tokens
// are legal; callers simply cannot learn anything from them locally.
var ErrNotJWT = errors.New("token is not a JWT")

// TokenClaims is what the client can read from a token without the signing
// secret.  Nothing here is trusted for authorization; the backend's answer
// to /auth/me is the only authority.  It is used to skip a network round
// trip for tokens that are certainly expired.
type TokenClaims struct {
	Subject   string    // "sub" or "id"/"userId" claim
	ExpiresAt time.Time // zero when the token carries no exp
	IssuedAt  time.Time // zero when the token carries no iat
}

// InspectToken decodes the claims of a JWT without verifying the signature.
func InspectToken(raw string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenClaims{}, ErrNotJWT
	}
	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		out.Subject = sub
	} else {
		// the chapel backend signs {id: ...}; older builds used userId
		for _, k := range []string{"id", "userId", "_id"} {
			if v, ok := claims[k].(string); ok && v != "" {
				out.Subject = v
				break
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}

// Expired reports whether raw is a JWT whose exp lies at or before now.
// Opaque tokens and JWTs without exp are never considered expired.
func Expired(raw string, now time.Time) bool {
	c, err := InspectToken(raw)
	if err != nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
