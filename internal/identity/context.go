package identity

import (
	"context"

	"github.com/dropDatabas3/agenda/internal/capability"
)

// AuthContext identidad resuelta de un request. No se persiste ni se comparte
// entre requests.
type AuthContext struct {
	ExternalSubjectID string `json:"external_subject_id"`
	InternalUserID    string `json:"internal_user_id"`
	Email             string `json:"email,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
	AvatarURL         string `json:"avatar_url,omitempty"`

	// ProfileStale los campos espejo no se pudieron refrescar en este login.
	ProfileStale bool `json:"-"`
}

// NewAuthContext arma el contexto a partir de la identidad verificada y la resolución.
// Los campos espejo salen del User guardado (que puede ir detrás del token si Stale).
func NewAuthContext(id capability.ExternalIdentity, res *Resolution) *AuthContext {
	return &AuthContext{
		ExternalSubjectID: id.SubjectID,
		InternalUserID:    res.User.ID,
		Email:             res.User.Email,
		DisplayName:       res.User.DisplayName,
		AvatarURL:         res.User.AvatarURL,
		ProfileStale:      res.Stale,
	}
}

type ctxKey struct{}

// WithAuthContext adjunta ac al contexto.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext devuelve el AuthContext del request, si existe.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(ctxKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
