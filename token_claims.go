package identity

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenClaims are the claims carried by a session token. Decoded
// without signature verification: the token is only a fallback source of the
// account identifier when the payload omits it, never an entitlement input.
type SessionTokenClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// UserID resolves the account identifier from the claims, preferring the
// explicit uid claim over the registered subject.
func (c SessionTokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// DecodeSessionToken parses a session token's claims without verifying the
// signature. Verification belongs to the backend that issued it.
func DecodeSessionToken(token string) (*SessionTokenClaims, error) {
	claims := &SessionTokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"reason": "session token is not a valid JWT",
			"cause":  err.Error(),
		})
	}
	return claims, nil
}
