package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("tenant-1", "ops", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.Equal(t, "ops", claims.Subject)
	require.Equal(t, Issuer, claims.Issuer)
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("s3cret")
	expired, err := GenerateToken("tenant-1", "ops", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	require.ErrorIs(t, err, jwtlib.ErrTokenExpired)

	foreign, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(foreign, secret)
	require.ErrorIs(t, err, jwtlib.ErrTokenInvalidIssuer)

	_, err = GenerateToken("", "ops", secret, time.Hour)
	require.ErrorIs(t, err, ErrNoTenant)
}
