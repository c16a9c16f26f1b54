package identity

import "errors"

// Errores del verificador. Todos terminan en 401 en el middleware requerido.
var (
	ErrMissingCredential          = errors.New("missing credential")
	ErrMalformedCredential        = errors.New("malformed credential")
	ErrInvalidOrExpiredCredential = errors.New("invalid or expired credential")
	// ErrProviderUnavailable el identity provider no respondió. Transitorio; no se reintenta acá.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// ErrIdentityResolutionFailed falla del store durante el get-or-create.
var ErrIdentityResolutionFailed = errors.New("identity resolution failed")

func IsMissingCredential(err error) bool   { return errors.Is(err, ErrMissingCredential) }
func IsMalformedCredential(err error) bool { return errors.Is(err, ErrMalformedCredential) }
func IsInvalidCredential(err error) bool   { return errors.Is(err, ErrInvalidOrExpiredCredential) }
func IsProviderUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }
func IsResolutionFailed(err error) bool    { return errors.Is(err, ErrIdentityResolutionFailed) }

// IsCredentialError reporta si err es culpa del token (y no del sistema).
func IsCredentialError(err error) bool {
	return IsMissingCredential(err) || IsMalformedCredential(err) || IsInvalidCredential(err)
}
