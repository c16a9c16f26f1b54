package middlewares

import (
	"context"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/agenda/internal/http/errors"
	"github.com/dropDatabas3/agenda/internal/identity"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
)

// Mensajes de 401. No distinguen "token malo" de "store caído" más allá de lo necesario.
const (
	MsgMissingHeader       = "Missing or invalid Authorization header. Expected: Bearer <token>"
	MsgInvalidToken        = "Invalid or expired token"
	MsgProviderUnavailable = "Authentication service unavailable"
	MsgAuthFailed          = "Authentication failed"
)

// Authenticator lo implementa PipelineAuthenticator.
type Authenticator interface {
	Authenticate(r *http.Request) (*identity.AuthContext, error)
}

// PipelineAuthenticator adapta *identity.Pipeline a Authenticator.
type PipelineAuthenticator struct{ P *identity.Pipeline }

var _ Authenticator = PipelineAuthenticator{}

func (a PipelineAuthenticator) Authenticate(r *http.Request) (*identity.AuthContext, error) {
	return a.P.Authenticate(r.Context(), r.Header.Get("Authorization"))
}

// =================================================================================
// AUTHENTICATION MIDDLEWARES
// =================================================================================

// RequireAuth exige Authorization: Bearer <token>. Cualquier fallo de verificación
// o resolución responde 401 y corta la cadena.
func RequireAuth(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := auth.Authenticate(r)
			if err != nil {
				logger.From(r.Context()).Info("authentication rejected", logger.Err(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="agenda"`)
				httperrors.WriteError(w, httperrors.ErrUnauthorized.WithMessage(rejectMessage(r, err)).WithCause(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(attach(r, ac)))
		})
	}
}

// OptionalAuth adjunta identidad si hay un token válido. Sin header, o si el
// pipeline falla, el request sigue sin AuthContext.
func OptionalAuth(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			ac, err := auth.Authenticate(r)
			if err != nil {
				logger.From(r.Context()).Warn("optional authentication failed, continuing anonymously", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(attach(r, ac)))
		})
	}
}

func attach(r *http.Request, ac *identity.AuthContext) context.Context {
	ctx := identity.WithAuthContext(r.Context(), ac)
	return logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(ac.InternalUserID)))
}

func rejectMessage(r *http.Request, err error) string {
	if _, herr := identity.ExtractBearer(r.Header.Get("Authorization")); herr != nil {
		return MsgMissingHeader
	}
	switch {
	case identity.IsMissingCredential(err), identity.IsMalformedCredential(err), identity.IsInvalidCredential(err):
		return MsgInvalidToken
	case identity.IsProviderUnavailable(err):
		return MsgProviderUnavailable
	default:
		return MsgAuthFailed
	}
}
