package capability

import (
	"errors"
	"fmt"
)

// Códigos normalizados. Ningún provider devuelve otro valor en Error.Code.
const (
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeInvalidArgument     = "invalid_argument"
	CodeNotSupported        = "not_supported"
	CodeNotImplemented      = "not_implemented"
	CodeUnauthenticated     = "unauthenticated"
	CodeMissingCredential   = "missing_credential"
	CodeMalformedCredential = "malformed_credential"
	CodeInvalidCredential   = "invalid_credential"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal"
)

// Error es la única forma de error que cruza el borde de una capability.
// Details lleva texto de diagnóstico del provider (nunca su tipo).
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is compara por código, así errors.Is(err, &Error{Code: CodeConflict}) funciona.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// NewError crea un error normalizado sin detalles.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap normaliza un error del provider. El texto de la causa va a Details;
// la causa en sí se descarta para que ningún tipo del SDK escape.
func Wrap(code, message string, cause error) *Error {
	e := &Error{Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NotSupported indica que el provider rechaza la operación a propósito.
func NotSupported(op, provider string) *Error {
	return &Error{
		Code:    CodeNotSupported,
		Message: fmt.Sprintf("%s is not supported by %s", op, provider),
	}
}

// NotImplemented indica que la operación aún no existe para el provider.
func NotImplemented(op, provider string) *Error {
	return &Error{
		Code:    CodeNotImplemented,
		Message: fmt.Sprintf("%s not yet implemented for %s", op, provider),
	}
}

// CodeOf devuelve el código normalizado de err, o CodeInternal si err no es *Error.
// Retorna "" para nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// IsCode reporta si err es un *Error con el código dado.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Normalize garantiza que err sea *Error. Útil en providers como última línea de defensa.
func Normalize(err error, message string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return Wrap(CodeInternal, message, err)
}
