// Package jwt verifica bearer tokens (RS256 contra JWKS, HS256 con secreto
// compartido) y traduce cada fallo a un error de capability normalizado.
package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/agenda/internal/capability"
)

// Leeway tolerancia de reloj para exp/nbf/iat.
const Leeway = 30 * time.Second

// Claims claims que consume el bridge de identidad. UserMetadata lo usa GoTrue.
type Claims struct {
	jwtv5.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Name         string         `json:"name,omitempty"`
	Picture      string         `json:"picture,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Identity convierte las claims en una ExternalIdentity.
func (c *Claims) Identity() *capability.ExternalIdentity {
	id := &capability.ExternalIdentity{
		SubjectID:   c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
		AvatarURL:   c.Picture,
	}
	if id.DisplayName == "" {
		id.DisplayName = metaString(c.UserMetadata, "full_name", "name")
	}
	if id.AvatarURL == "" {
		id.AvatarURL = metaString(c.UserMetadata, "avatar_url", "picture")
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

func metaString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Expect restricciones de iss/aud. Vacío = no se chequea.
type Expect struct {
	Issuer   string
	Audience string
}

func (e Expect) parserOptions(methods ...string) []jwtv5.ParserOption {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods(methods),
		jwtv5.WithLeeway(Leeway),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
	}
	if e.Issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(e.Issuer))
	}
	if e.Audience != "" {
		opts = append(opts, jwtv5.WithAudience(e.Audience))
	}
	return opts
}

// KeySource resuelve la clave pública para un kid.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifyRS256 valida un token firmado con RS256 contra keys.
func VerifyRS256(ctx context.Context, token string, keys KeySource, exp Expect) (*Claims, error) {
	var claims Claims
	_, err := jwtv5.ParseWithClaims(token, &claims, func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", jwtv5.ErrTokenMalformed)
		}
		return keys.Key(ctx, kid)
	}, exp.parserOptions("RS256")...)
	if err != nil {
		return nil, Classify(err)
	}
	return checkSubject(&claims)
}

// VerifyHS256 valida un token firmado con HS256 con secret.
func VerifyHS256(token string, secret []byte, exp Expect) (*Claims, error) {
	var claims Claims
	_, err := jwtv5.ParseWithClaims(token, &claims, func(*jwtv5.Token) (any, error) {
		return secret, nil
	}, exp.parserOptions("HS256")...)
	if err != nil {
		return nil, Classify(err)
	}
	return checkSubject(&claims)
}

func checkSubject(c *Claims) (*Claims, error) {
	if strings.TrimSpace(c.Subject) == "" {
		return nil, capability.NewError(capability.CodeMalformedCredential, "token has no subject")
	}
	return c, nil
}

// Classify traduce errores de parseo/validación a códigos de capability.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrKeySetUnavailable):
		return capability.Wrap(capability.CodeUnavailable, "identity provider keys unavailable", err)
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return capability.Wrap(capability.CodeMalformedCredential, "malformed token", err)
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return capability.Wrap(capability.CodeInvalidCredential, "token expired", err)
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid),
		errors.Is(err, jwtv5.ErrTokenUnverifiable),
		errors.Is(err, jwtv5.ErrTokenInvalidIssuer),
		errors.Is(err, jwtv5.ErrTokenInvalidAudience),
		errors.Is(err, jwtv5.ErrTokenNotValidYet),
		errors.Is(err, jwtv5.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwtv5.ErrTokenRequiredClaimMissing),
		errors.Is(err, ErrKeyNotFound):
		return capability.Wrap(capability.CodeInvalidCredential, "invalid token", err)
	default:
		return capability.Wrap(capability.CodeInvalidCredential, "invalid token", err)
	}
}
