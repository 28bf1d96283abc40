package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret string, claims CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHMACValidator_AcceptsTokenSignedWithSameSecret(t *testing.T) {
	secret := "a-very-long-shared-signing-secret-value"
	v := NewHMACValidator(secret)

	token := signHS256(t, secret, CustomClaims{
		Name:  "Alice",
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uA",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "uA", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)
}

func TestHMACValidator_RejectsWrongSecret(t *testing.T) {
	v := NewHMACValidator("correct-secret-correct-secret-long")
	token := signHS256(t, "wrong-secret-wrong-secret-long-one", CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "uA"},
	})

	_, err := v.ValidateToken(token)
	assert.Error(t, err)
}

func TestHMACValidator_RejectsExpiredToken(t *testing.T) {
	secret := "a-very-long-shared-signing-secret-value"
	v := NewHMACValidator(secret)

	token := signHS256(t, secret, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uA",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.ValidateToken(token)
	assert.Error(t, err)
}

func TestHMACValidator_RejectsMalformedToken(t *testing.T) {
	v := NewHMACValidator("a-very-long-shared-signing-secret-value")
	_, err := v.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
