package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		subject string
	}{
		{"sub claim", jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}, "u1"},
		{"id claim", jwt.MapClaims{"id": "u2", "exp": exp.Unix()}, "u2"},
		{"userId claim", jwt.MapClaims{"userId": "u3", "exp": exp.Unix()}, "u3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := InspectToken(sign(t, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.subject, c.Subject)
			assert.True(t, c.ExpiresAt.Equal(exp))
		})
	}
}

func TestInspectOpaque(t *testing.T) {
	_, err := InspectToken("opaque-session-token")
	assert.ErrorIs(t, err, ErrNotJWT)
	assert.False(t, Expired("opaque-session-token", time.Now()))
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := sign(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(-time.Minute).Unix()})
	future := sign(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Minute).Unix()})
	noExp := sign(t, jwt.MapClaims{"sub": "u1"})

	assert.True(t, Expired(past, now))
	assert.False(t, Expired(future, now))
	assert.False(t, Expired(noExp, now))
}
