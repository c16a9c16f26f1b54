package capability

import (
	"io"
	"time"
)

// DefaultBucket se usa cuando una operación de Storage recibe bucket vacío
// y el provider no tiene uno configurado.
const DefaultBucket = "event-images"

// ExternalIdentity es lo que produce la verificación de un token.
// No se persiste: vive lo que dura un request.
type ExternalIdentity struct {
	SubjectID   string
	Email       string
	DisplayName string
	AvatarURL   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// User es el registro durable que mapea una identidad externa a un id interno.
// ID lo genera el store y no cambia nunca.
type User struct {
	ID                string    `json:"id"`
	ExternalSubjectID string    `json:"external_subject_id"`
	Email             string    `json:"email,omitempty"`
	DisplayName       string    `json:"display_name,omitempty"`
	AvatarURL         string    `json:"avatar_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewUser datos para insertar un User. El id lo asigna el store.
type NewUser struct {
	ExternalSubjectID string
	Email             string
	DisplayName       string
	AvatarURL         string
}

// Mirror son los campos espejo del identity provider. Vacío se guarda como NULL.
type Mirror struct {
	Email       string
	DisplayName string
	AvatarURL   string
}

// MirrorOf extrae los campos espejo de una identidad verificada.
func MirrorOf(id ExternalIdentity) Mirror {
	return Mirror{Email: id.Email, DisplayName: id.DisplayName, AvatarURL: id.AvatarURL}
}

// MirrorOfUser extrae los campos espejo guardados.
func MirrorOfUser(u User) Mirror {
	return Mirror{Email: u.Email, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// ─── Auth ───

// Session resultado de un sign-in exitoso.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}

// AuthUser vista del usuario según el identity provider.
type AuthUser struct {
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

// SignUpInput datos de registro con email y password.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// FederatedSignIn login con un IdP externo (google, github, ...).
// IDToken es el token emitido por ese IdP; RequestURI lo exigen algunos providers.
type FederatedSignIn struct {
	Provider   string
	IDToken    string
	RequestURI string
}

// AuthEventType tipo de cambio de estado de sesión.
type AuthEventType string

const (
	AuthSignedIn        AuthEventType = "signed_in"
	AuthSignedOut       AuthEventType = "signed_out"
	AuthUserDeleted     AuthEventType = "user_deleted"
	AuthPasswordUpdated AuthEventType = "password_updated"
)

// AuthEvent notificación a los listeners de OnAuthStateChanged.
type AuthEvent struct {
	Type AuthEventType
	User *AuthUser
}

// ─── Database ───

// Event evento publicado en la agenda. Los campos de negocio son opacos para este módulo.
type Event struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Status      string    `json:"status"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventInput datos para crear un Event.
type EventInput struct {
	OrganizerID string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	ImageURL    string    `json:"image_url"`
	Status      string    `json:"status"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// EventPatch actualización parcial; nil = sin cambio.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	Status      *string    `json:"status,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// EventFilter filtros de GetEvents. Limit 0 = default del provider.
type EventFilter struct {
	OrganizerID string
	Status      string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// Profile datos de perfil editables por el usuario, indexados por User.ID.
type Profile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfilePatch actualización parcial del perfil.
type ProfilePatch struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Locale      *string `json:"locale,omitempty"`
}

// ─── Storage ───

// UploadOptions opciones de Upload. Bucket vacío = bucket por defecto.
type UploadOptions struct {
	Bucket      string
	ContentType string
	Upsert      bool
}

// StoredObject resultado de un Upload.
type StoredObject struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
	Size      int64  `json:"size"`
}

// ObjectInfo entrada de List.
type ObjectInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ─── Functions ───

// InvokeOptions parámetros de Invoke. Method vacío = POST.
type InvokeOptions struct {
	Body    io.Reader
	Headers map[string]string
	Method  string
}

// InvokeResult respuesta de una función remota.
type InvokeResult struct {
	Status  int
	Headers map[string]string
	Body    []byte
}
