// Package authtest mints access tokens for tests. The tokens are HS256 signed
// with a fixed key; the decoder ignores signatures, so any key works.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("authtest-signing-key")

// Claims is a free-form claim set. Use it to build tokens that omit or
// corrupt required claims.
type Claims = jwt.MapClaims

// Token signs claims as-is.
func Token(t testing.TB, claims Claims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err)
	return signed
}

// UserToken mints a well-formed token for role expiring at exp.
func UserToken(t testing.TB, userID, email, role string, exp time.Time) string {
	t.Helper()

	return Token(t, Claims{
		"userId": userID,
		"email":  email,
		"role":   role,
		"exp":    exp.Unix(),
		"jti":    uuid.NewString(),
	})
}
