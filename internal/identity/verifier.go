// Package identity conecta tokens emitidos por el identity provider con
// usuarios durables: Verifier valida el bearer token y Resolver hace el
// get-or-create idempotente del User.
package identity

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/metrics"
	"github.com/dropDatabas3/agenda/internal/observability/tracing"
)

// AuthProvider fuente de la capability de auth (normalmente *registry.Registry).
type AuthProvider interface {
	Auth(ctx context.Context) (capability.Auth, error)
}

// ExtractBearer obtiene el token de un header Authorization.
// Header vacío → ErrMissingCredential; otro esquema o token vacío → ErrMalformedCredential.
func ExtractBearer(header string) (string, error) {
	h := strings.TrimSpace(header)
	if h == "" {
		return "", ErrMissingCredential
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMalformedCredential
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedCredential
	}
	return token, nil
}

// Verifier valida bearer tokens contra el identity provider configurado.
// Cada llamada verifica de nuevo: no hay cache de resultados.
type Verifier struct {
	auth AuthProvider
}

func NewVerifier(auth AuthProvider) *Verifier {
	return &Verifier{auth: auth}
}

// Verify devuelve la identidad verificada o uno de los errores del paquete
// (envolviendo el error de capability original para los logs).
func (v *Verifier) Verify(ctx context.Context, token string) (*capability.ExternalIdentity, error) {
	ctx, span := tracing.Start(ctx, "identity.verify")
	defer span.End()

	id, err := v.verify(ctx, token)
	outcome := verifyOutcome(err)
	metrics.TokenVerifications.WithLabelValues(outcome).Inc()
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return id, nil
}

func (v *Verifier) verify(ctx context.Context, token string) (*capability.ExternalIdentity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingCredential
	}

	auth, err := v.auth.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	id, err := auth.VerifyToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", classify(err), err)
	}
	if id == nil || strings.TrimSpace(id.SubjectID) == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrMalformedCredential)
	}
	return id, nil
}

func classify(err error) error {
	switch capability.CodeOf(err) {
	case capability.CodeMissingCredential:
		return ErrMissingCredential
	case capability.CodeMalformedCredential:
		return ErrMalformedCredential
	case capability.CodeInvalidCredential, capability.CodeUnauthenticated, capability.CodeNotFound:
		return ErrInvalidOrExpiredCredential
	default:
		return ErrProviderUnavailable
	}
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsMissingCredential(err):
		return "missing"
	case IsMalformedCredential(err):
		return "malformed"
	case IsInvalidCredential(err):
		return "invalid"
	default:
		return "unavailable"
	}
}
