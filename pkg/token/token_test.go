package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-client/models"
)

func sign(t *testing.T, claims models.TokenClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return s
}

func TestInspect(t *testing.T) {
	exp := time.Unix(1700000000, 0)
	raw := sign(t, models.TokenClaims{
		UserID:   "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	claims, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity())
	assert.Equal(t, "alice", Username(raw, "fallback"))

	assert.False(t, Expired(raw, exp.Add(-time.Second)))
	assert.True(t, Expired(raw, exp))
}

func TestSubjectFallback(t *testing.T) {
	raw := sign(t, models.TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	assert.Equal(t, "bob", Username(raw, "x"))
	assert.False(t, Expired(raw, time.Now()))
}

func TestOpaqueToken(t *testing.T) {
	_, err := Inspect("not-a-jwt")
	assert.ErrorIs(t, err, ErrOpaque)
	_, err = Inspect("")
	assert.ErrorIs(t, err, ErrOpaque)

	assert.Equal(t, "carol", Username("opaque", "carol"))
	assert.False(t, Expired("opaque", time.Now()))
}
