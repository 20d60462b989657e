package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const Issuer = "ragdesk"

var ErrNoTenant = errors.New("token carries no tenant")

// Claims scope a document management token to one tenant. Subject names the
// operator the token was minted for.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwtlib.RegisteredClaims
}

func GenerateToken(tenantID, subject string, secret []byte, ttl time.Duration) (string, error) {
	if tenantID == "" {
		return "", ErrNoTenant
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(tokenString, claims, func(*jwtlib.Token) (interface{}, error) {
		return secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(Issuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.TenantID == "" {
		return nil, ErrNoTenant
	}
	return claims, nil
}
