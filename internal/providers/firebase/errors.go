package firebase

import (
	"errors"
	"strings"

	"github.com/dropDatabas3/agenda/internal/capability"
)

// Identity Toolkit responde {"error":{"message":"EMAIL_EXISTS"}}; a veces con
// un sufijo " : detalle".
var firebaseCodes = map[string]string{
	"EMAIL_EXISTS":                   capability.CodeConflict,
	"EMAIL_NOT_FOUND":                capability.CodeUnauthenticated,
	"INVALID_PASSWORD":               capability.CodeUnauthenticated,
	"INVALID_LOGIN_CREDENTIALS":      capability.CodeUnauthenticated,
	"USER_DISABLED":                  capability.CodeUnauthenticated,
	"INVALID_ID_TOKEN":               capability.CodeInvalidCredential,
	"TOKEN_EXPIRED":                  capability.CodeInvalidCredential,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": capability.CodeInvalidCredential,
	"USER_NOT_FOUND":                 capability.CodeNotFound,
	"WEAK_PASSWORD":                  capability.CodeInvalidArgument,
	"INVALID_EMAIL":                  capability.CodeInvalidArgument,
	"MISSING_PASSWORD":               capability.CodeInvalidArgument,
	"INVALID_IDP_RESPONSE":           capability.CodeUnauthenticated,
	"TOO_MANY_ATTEMPTS_TRY_LATER":    capability.CodeUnavailable,
	"OPERATION_NOT_ALLOWED":          capability.CodeNotSupported,
}

func mapFirebaseErr(err error) error {
	var ce *capability.Error
	if err == nil || !errors.As(err, &ce) {
		return err
	}
	key, _, _ := strings.Cut(ce.Message, " ")
	if code, ok := firebaseCodes[key]; ok {
		return &capability.Error{Code: code, Message: ce.Message, Details: ce.Details}
	}
	return err
}
