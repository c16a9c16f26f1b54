// Package capability define los contratos que todo provider de backend
// (auth, base de datos, storage, funciones) debe cumplir.
//
// Reglas del borde:
//   - Toda operación devuelve (resultado, error); nunca panic.
//   - Todo error no-nil es *Error con un código normalizado.
//   - Operaciones que un provider no puede ofrecer devuelven
//     CodeNotSupported o CodeNotImplemented, nunca un método ausente.
package capability

import (
	"context"
	"io"
)

// Auth contrato del identity provider.
type Auth interface {
	Name() string

	SignUp(ctx context.Context, in SignUpInput) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignInWithFederatedProvider(ctx context.Context, in FederatedSignIn) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetCurrentUser(ctx context.Context, accessToken string) (*AuthUser, error)
	// OnAuthStateChanged registra fn y devuelve la función para desregistrarla.
	OnAuthStateChanged(fn func(AuthEvent)) (unsubscribe func())
	SendPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	DeleteAccount(ctx context.Context, accessToken string) error

	// VerifyToken valida firma y expiración del bearer token.
	// Errores: CodeMalformedCredential, CodeInvalidCredential, CodeUnavailable.
	VerifyToken(ctx context.Context, token string) (*ExternalIdentity, error)
}

// Database contrato del store durable.
type Database interface {
	Name() string

	GetEvents(ctx context.Context, f EventFilter) ([]Event, error)
	GetEvent(ctx context.Context, id string) (*Event, error)
	CreateEvent(ctx context.Context, in EventInput) (*Event, error)
	UpdateEvent(ctx context.Context, id string, p EventPatch) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, p ProfilePatch) (*Profile, error)

	// GetUserBySubject devuelve CodeNotFound si no existe.
	GetUserBySubject(ctx context.Context, externalSubjectID string) (*User, error)
	// CreateUser devuelve CodeConflict si external_subject_id ya existe.
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	UpdateUserMirror(ctx context.Context, id string, m Mirror) (*User, error)

	// Escape hatches genéricos. Un provider puede devolver CodeNotSupported.
	Query(ctx context.Context, table string, filter map[string]any) ([]map[string]any, error)
	Insert(ctx context.Context, table string, row map[string]any) (map[string]any, error)
	Update(ctx context.Context, table string, filter, patch map[string]any) (int64, error)
	Delete(ctx context.Context, table string, filter map[string]any) (int64, error)
}

// Storage contrato de almacenamiento de objetos. Bucket "" = bucket por defecto.
type Storage interface {
	Name() string

	Upload(ctx context.Context, path string, body io.Reader, opts UploadOptions) (*StoredObject, error)
	GetPublicURL(ctx context.Context, path, bucket string) (string, error)
	Delete(ctx context.Context, paths []string, bucket string) error
	List(ctx context.Context, prefix, bucket string) ([]ObjectInfo, error)
}

// Functions contrato de funciones remotas (RPC genérico).
type Functions interface {
	Name() string

	Invoke(ctx context.Context, name string, opts InvokeOptions) (*InvokeResult, error)
}

// Pinger lo implementan capabilities que pueden chequear su backend (readiness).
type Pinger interface {
	Ping(ctx context.Context) error
}
