package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager("secret", time.Hour, "dupahar-chat")

	token, err := m.GenerateToken("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "dupahar-chat", claims.Issuer)

	claims, err = m.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateExpired(t *testing.T) {
	m := NewManager("secret", time.Minute, "dupahar-chat")
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := m.GenerateToken("alice")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.True(t, errors.Is(err, ErrExpiredToken))
}

func TestValidateRejects(t *testing.T) {
	m := NewManager("secret", time.Hour, "dupahar-chat")

	other := NewManager("other-secret", time.Hour, "dupahar-chat")
	forged, err := other.GenerateToken("alice")
	require.NoError(t, err)

	wrongIssuer, err := NewManager("secret", time.Hour, "someone-else").GenerateToken("alice")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "alice"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"wrong issuer": wrongIssuer,
		"alg none":     unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateToken(token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}
