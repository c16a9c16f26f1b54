package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/jwt"
	"github.com/dropDatabas3/agenda/internal/providers/rest"
)

// Audience aud de los access tokens de usuario emitidos por GoTrue.
const Audience = "authenticated"

// Auth identity provider sobre GoTrue (/auth/v1).
type Auth struct {
	gotrue   *rest.Client
	admin    *rest.Client // nil sin service role key
	secret   []byte
	expect   jwt.Expect
	listener capability.AuthListeners
}

func NewAuth(cfg config.SupabaseConfig, timeout time.Duration) (*Auth, error) {
	if cfg.URL == "" || cfg.AnonKey == "" || cfg.JWTSecret == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "supabase auth requires url, anon_key and jwt_secret")
	}
	base := strings.TrimRight(cfg.URL, "/")
	a := &Auth{
		gotrue: rest.New(base+"/auth/v1", timeout, map[string]string{"apikey": cfg.AnonKey}),
		secret: []byte(cfg.JWTSecret),
		expect: jwt.Expect{Issuer: base + "/auth/v1", Audience: Audience},
	}
	if cfg.ServiceRoleKey != "" {
		a.admin = rest.New(base+"/auth/v1", timeout, map[string]string{
			"apikey":        cfg.ServiceRoleKey,
			"Authorization": "Bearer " + cfg.ServiceRoleKey,
		})
	}
	return a, nil
}

var _ capability.Auth = (*Auth)(nil)

func (a *Auth) Name() string { return Name }

type gotrueUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (u gotrueUser) toAuthUser() capability.AuthUser {
	out := capability.AuthUser{
		SubjectID:     u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailConfirmedAt != nil,
	}
	if s, ok := u.UserMetadata["full_name"].(string); ok {
		out.DisplayName = s
	} else if s, ok := u.UserMetadata["name"].(string); ok {
		out.DisplayName = s
	}
	if s, ok := u.UserMetadata["avatar_url"].(string); ok {
		out.AvatarURL = s
	}
	return out
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         gotrueUser `json:"user"`

	// signup sin autoconfirm devuelve el usuario en la raíz
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s gotrueSession) toSession() *capability.Session {
	u := s.User
	if u.ID == "" {
		u = gotrueUser{ID: s.ID, Email: s.Email}
	}
	out := &capability.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         u.toAuthUser(),
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn > 0:
		out.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	return out
}

func (a *Auth) SignUp(ctx context.Context, in capability.SignUpInput) (*capability.Session, error) {
	body := map[string]any{"email": in.Email, "password": in.Password}
	if in.DisplayName != "" {
		body["data"] = map[string]string{"full_name": in.DisplayName}
	}
	var s gotrueSession
	if err := a.gotrue.Do(ctx, rest.Request{Method: http.MethodPost, Path: "/signup", Body: body}, &s); err != nil {
		return nil, signUpErr(err)
	}
	return a.started(s.toSession()), nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*capability.Session, error) {
	var s gotrueSession
	err := a.gotrue.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/token",
		Query:  url.Values{"grant_type": {"password"}},
		Body:   map[string]string{"email": email, "password": password},
	}, &s)
	if err != nil {
		return nil, credentialsErr(err)
	}
	return a.started(s.toSession()), nil
}

// SignInWithFederatedProvider usa el grant id_token de GoTrue (google, apple, ...).
func (a *Auth) SignInWithFederatedProvider(ctx context.Context, in capability.FederatedSignIn) (*capability.Session, error) {
	if in.Provider == "" || in.IDToken == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "provider and id token are required")
	}
	var s gotrueSession
	err := a.gotrue.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/token",
		Query:  url.Values{"grant_type": {"id_token"}},
		Body:   map[string]string{"provider": in.Provider, "id_token": in.IDToken},
	}, &s)
	if err != nil {
		return nil, credentialsErr(err)
	}
	return a.started(s.toSession()), nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	id, err := a.VerifyToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := a.gotrue.Do(ctx, rest.Request{Method: http.MethodPost, Path: "/logout", Bearer: accessToken}, nil); err != nil {
		return err
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthSignedOut, User: &capability.AuthUser{SubjectID: id.SubjectID}})
	return nil
}

func (a *Auth) GetCurrentUser(ctx context.Context, accessToken string) (*capability.AuthUser, error) {
	var u gotrueUser
	if err := a.gotrue.Do(ctx, rest.Request{Path: "/user", Bearer: accessToken}, &u); err != nil {
		return nil, err
	}
	out := u.toAuthUser()
	return &out, nil
}

func (a *Auth) OnAuthStateChanged(fn func(capability.AuthEvent)) func() {
	return a.listener.Subscribe(fn)
}

func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	return a.gotrue.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/recover",
		Body:   map[string]string{"email": email},
	}, nil)
}

func (a *Auth) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	var u gotrueUser
	err := a.gotrue.Do(ctx, rest.Request{
		Method: http.MethodPut,
		Path:   "/user",
		Bearer: accessToken,
		Body:   map[string]string{"password": newPassword},
	}, &u)
	if err != nil {
		return err
	}
	au := u.toAuthUser()
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthPasswordUpdated, User: &au})
	return nil
}

// DeleteAccount borra al dueño del token vía la admin API; requiere service role key.
func (a *Auth) DeleteAccount(ctx context.Context, accessToken string) error {
	if a.admin == nil {
		return capability.NotSupported("delete account without service_role_key", Name)
	}
	u, err := a.GetCurrentUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := a.admin.Do(ctx, rest.Request{Method: http.MethodDelete, Path: "/admin/users/" + url.PathEscape(u.SubjectID)}, nil); err != nil {
		return err
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthUserDeleted, User: u})
	return nil
}

// VerifyToken valida localmente el HS256 con el jwt secret del proyecto.
func (a *Auth) VerifyToken(ctx context.Context, token string) (*capability.ExternalIdentity, error) {
	c, err := jwt.VerifyHS256(token, a.secret, a.expect)
	if err != nil {
		return nil, err
	}
	return c.Identity(), nil
}

func (a *Auth) started(s *capability.Session) *capability.Session {
	if s.AccessToken != "" {
		u := s.User
		a.listener.Emit(capability.AuthEvent{Type: capability.AuthSignedIn, User: &u})
	}
	return s
}

// GoTrue responde 400 invalid_grant ante credenciales malas.
func credentialsErr(err error) error {
	if capability.IsCode(err, capability.CodeInvalidArgument) {
		return capability.NewError(capability.CodeUnauthenticated, "invalid credentials")
	}
	return err
}

// GoTrue responde 422 / 400 "User already registered" para emails repetidos.
func signUpErr(err error) error {
	var ce *capability.Error
	if capability.IsCode(err, capability.CodeInvalidArgument) && errors.As(err, &ce) &&
		strings.Contains(strings.ToLower(ce.Message), "already registered") {
		return capability.NewError(capability.CodeConflict, "email already registered")
	}
	return err
}
