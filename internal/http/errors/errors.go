// Package errors define los errores HTTP de la API y su serialización.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/agenda/internal/capability"
)

// AppError error de la API. Code va en "error", Message en "message".
type AppError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithMessage devuelve una copia con otro mensaje.
func (e *AppError) WithMessage(msg string) *AppError {
	n := *e
	n.Message = msg
	return &n
}

// WithDetail devuelve una copia con detalle (p. ej. errores de validación).
func (e *AppError) WithDetail(detail string) *AppError {
	n := *e
	n.Detail = detail
	return &n
}

// WithCause devuelve una copia con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	n := *e
	n.Err = err
	return &n
}

// FromError convierte err en *AppError. Errores de capability se mapean por código;
// cualquier otro es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var capErr *capability.Error
	if errors.As(err, &capErr) {
		return FromCapability(capErr)
	}
	return ErrInternalServerError.WithCause(err)
}

// FromCapability mapea un error normalizado de capability a HTTP. El detalle del
// provider no se expone.
func FromCapability(ce *capability.Error) *AppError {
	var base *AppError
	switch ce.Code {
	case capability.CodeNotFound:
		base = ErrNotFound
	case capability.CodeConflict:
		base = ErrConflict
	case capability.CodeInvalidArgument:
		base = ErrBadRequest
	case capability.CodeNotSupported, capability.CodeNotImplemented:
		base = ErrNotImplemented
	case capability.CodeUnauthenticated, capability.CodeMissingCredential,
		capability.CodeMalformedCredential, capability.CodeInvalidCredential:
		base = ErrUnauthorized
	case capability.CodeUnavailable:
		base = ErrServiceUnavailable
	default:
		return ErrInternalServerError.WithCause(ce)
	}
	return base.WithMessage(ce.Message).WithCause(ce)
}

// WriteError escribe err como JSON con su status.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(appErr)
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BadRequest",
		Message:    "The request is malformed or missing parameters.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "BadRequest",
		Message:    "The request body is not valid JSON.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnauthorized = &AppError{
		Code:       "Unauthorized",
		Message:    "Authentication required.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "Forbidden",
		Message:    "You do not have permission to perform this action.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NotFound",
		Message:    "The requested resource was not found.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "Conflict",
		Message:    "The resource already exists.",
		HTTPStatus: http.StatusConflict,
	}

	ErrPayloadTooLarge = &AppError{
		Code:       "PayloadTooLarge",
		Message:    "The request body is too large.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "TooManyRequests",
		Message:    "Rate limit exceeded. Try again later.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &AppError{
		Code:       "InternalServerError",
		Message:    "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrNotImplemented = &AppError{
		Code:       "NotImplemented",
		Message:    "This operation is not available with the configured provider.",
		HTTPStatus: http.StatusNotImplemented,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "ServiceUnavailable",
		Message:    "A backing service is unavailable.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
