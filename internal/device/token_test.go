package device

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour)
	raw := signedToken(t, jwt.MapClaims{
		"sub": "dev-1",
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})

	info, err := InspectToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", info.DeviceID)
	assert.WithinDuration(t, exp, info.ExpiresAt, time.Second)

	assert.False(t, info.ExpiresWithin(time.Hour))
	assert.True(t, info.ExpiresWithin(3*time.Hour))
}

func TestInspectToken_NoExpiry(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "dev-1"})

	info, err := InspectToken(raw)
	require.NoError(t, err)
	assert.True(t, info.ExpiresAt.IsZero())
	assert.False(t, info.ExpiresWithin(24*time.Hour))
}

func TestInspectToken_Malformed(t *testing.T) {
	_, err := InspectToken("not-a-jwt")
	assert.Error(t, err)
}
