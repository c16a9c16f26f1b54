package jwt

import (
	"crypto/rsa"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// SignHS256 firma claims con secret. Lo usa el provider en memoria para emitir sesiones.
func SignHS256(c Claims, secret []byte) (string, error) {
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, c).SignedString(secret)
}

// SignRS256 firma claims con key e incluye kid en el header.
func SignRS256(c Claims, key *rsa.PrivateKey, kid string) (string, error) {
	t := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, c)
	t.Header["kid"] = kid
	return t.SignedString(key)
}

// NewClaims arma claims estándar para sub con vida ttl.
func NewClaims(sub, issuer, audience string, ttl time.Duration) Claims {
	now := time.Now()
	c := Claims{RegisteredClaims: jwtv5.RegisteredClaims{
		Subject:   sub,
		Issuer:    issuer,
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}}
	if audience != "" {
		c.Audience = jwtv5.ClaimStrings{audience}
	}
	return c
}
