package middlewares

import (
	"context"

	"github.com/dropDatabas3/agenda/internal/identity"
)

type ctxKey int

const requestIDKey ctxKey = iota

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// GetRequestID devuelve el X-Request-ID del request.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// GetAuthContext devuelve la identidad resuelta, si el request pasó por auth.
func GetAuthContext(ctx context.Context) (*identity.AuthContext, bool) {
	return identity.FromContext(ctx)
}

// MustAuthContext para handlers montados detrás de RequireAuth.
// Panic si no hay contexto: indica un error de wiring, no de cliente.
func MustAuthContext(ctx context.Context) *identity.AuthContext {
	ac, ok := identity.FromContext(ctx)
	if !ok {
		panic("middlewares: handler requires RequireAuth")
	}
	return ac
}
