package identity_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestDecodeSessionToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":  "acc-1",
		"uid":  "acc-uid",
		"role": "viewer",
	})

	claims, err := identity.DecodeSessionToken(token)
	require.NoError(t, err)

	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "acc-uid", claims.UID)
	assert.Equal(t, "viewer", claims.UserRole)
}

func TestSessionTokenClaims_UserIDPrefersUID(t *testing.T) {
	withUID := identity.SessionTokenClaims{UID: "acc-uid"}
	withUID.Subject = "acc-sub"
	assert.Equal(t, "acc-uid", withUID.UserID())

	subjectOnly := identity.SessionTokenClaims{}
	subjectOnly.Subject = "acc-sub"
	assert.Equal(t, "acc-sub", subjectOnly.UserID())
}

func TestDecodeSessionToken_Invalid(t *testing.T) {
	_, err := identity.DecodeSessionToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, identity.IsAuthError(err))
}
