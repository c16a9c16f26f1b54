package firebase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/jwt"
	"github.com/dropDatabas3/agenda/internal/providers/rest"
)

const (
	DefaultJWKSURL     = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://oauth2.googleapis.com/token"

	adminScope = "https://www.googleapis.com/auth/identitytoolkit"
)

// Auth identity provider sobre Firebase Authentication.
type Auth struct {
	projectID string
	apiKey    string
	api       *rest.Client // endpoints públicos (?key=)
	admin     *rest.Client // endpoints /projects/{id}/..., con token de service account
	keys      *jwt.KeySet
	expect    jwt.Expect
	listener  capability.AuthListeners
}

// NewAuth arma el provider. El token de service account se obtiene bajo
// demanda con golang.org/x/oauth2/jwt y se cachea hasta su expiración.
func NewAuth(ctx context.Context, cfg config.FirebaseConfig, timeout time.Duration) (*Auth, error) {
	if cfg.ProjectID == "" || cfg.APIKey == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "firebase auth requires project_id and api_key")
	}
	jwksURL := firstNonEmpty(cfg.JWKSURL, DefaultJWKSURL)
	identityURL := firstNonEmpty(cfg.IdentityBaseURL, DefaultIdentityURL)

	a := &Auth{
		projectID: cfg.ProjectID,
		apiKey:    cfg.APIKey,
		api:       rest.New(identityURL, timeout, nil),
		keys:      jwt.NewKeySet(jwksURL, &http.Client{Timeout: timeout}),
		expect: jwt.Expect{
			Issuer:   "https://securetoken.google.com/" + cfg.ProjectID,
			Audience: cfg.ProjectID,
		},
	}

	if cfg.ClientEmail != "" && cfg.PrivateKey != "" {
		sa := &oauthjwt.Config{
			Email:      cfg.ClientEmail,
			PrivateKey: []byte(cfg.PrivateKey),
			Scopes:     []string{adminScope},
			TokenURL:   firstNonEmpty(cfg.TokenURL, DefaultTokenURL),
		}
		tctx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		hc := sa.Client(tctx)
		hc.Timeout = timeout
		a.admin = rest.New(identityURL, timeout, nil).WithHTTPClient(hc)
	}
	return a, nil
}

var _ capability.Auth = (*Auth)(nil)

func (a *Auth) Name() string { return Name }

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// call POST a un endpoint público accounts:* con la api key.
func (a *Auth) call(ctx context.Context, method string, body, out any) error {
	err := a.api.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/accounts:" + method,
		Query:  url.Values{"key": {a.apiKey}},
		Body:   body,
	}, out)
	return mapFirebaseErr(err)
}

// adminCall POST a /projects/{id}/accounts:* con el token de service account.
func (a *Auth) adminCall(ctx context.Context, method string, body, out any) error {
	if a.admin == nil {
		return capability.NotSupported(method+" without service account credentials", Name)
	}
	err := a.admin.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/projects/" + url.PathEscape(a.projectID) + "/accounts:" + method,
		Body:   body,
	}, out)
	return mapFirebaseErr(err)
}

type tokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	// signInWithIdp
	EmailVerified bool `json:"emailVerified"`
}

func (t tokenResponse) session() *capability.Session {
	s := &capability.Session{
		AccessToken:  t.IDToken,
		RefreshToken: t.RefreshToken,
		User: capability.AuthUser{
			SubjectID:     t.LocalID,
			Email:         t.Email,
			EmailVerified: t.EmailVerified,
			DisplayName:   t.DisplayName,
			AvatarURL:     t.PhotoURL,
		},
	}
	if secs, err := strconv.Atoi(t.ExpiresIn); err == nil && secs > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second).UTC()
	}
	return s
}

func (a *Auth) SignUp(ctx context.Context, in capability.SignUpInput) (*capability.Session, error) {
	body := map[string]any{"email": in.Email, "password": in.Password, "returnSecureToken": true}
	if in.DisplayName != "" {
		body["displayName"] = in.DisplayName
	}
	var tr tokenResponse
	if err := a.call(ctx, "signUp", body, &tr); err != nil {
		return nil, err
	}
	return a.signedIn(tr.session()), nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*capability.Session, error) {
	var tr tokenResponse
	err := a.call(ctx, "signInWithPassword", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	}, &tr)
	if err != nil {
		return nil, err
	}
	return a.signedIn(tr.session()), nil
}

// providerIDs nombres cortos aceptados para SignInWithFederatedProvider.
var providerIDs = map[string]string{
	"google":   "google.com",
	"apple":    "apple.com",
	"facebook": "facebook.com",
	"github":   "github.com",
}

func (a *Auth) SignInWithFederatedProvider(ctx context.Context, in capability.FederatedSignIn) (*capability.Session, error) {
	if in.Provider == "" || in.IDToken == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "provider and id token are required")
	}
	providerID := in.Provider
	if id, ok := providerIDs[in.Provider]; ok {
		providerID = id
	}
	requestURI := firstNonEmpty(in.RequestURI, "http://localhost")
	post := url.Values{"id_token": {in.IDToken}, "providerId": {providerID}}

	var tr tokenResponse
	err := a.call(ctx, "signInWithIdp", map[string]any{
		"postBody":            post.Encode(),
		"requestUri":          requestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &tr)
	if err != nil {
		return nil, err
	}
	return a.signedIn(tr.session()), nil
}

// SignOut revoca los refresh tokens del usuario (validSince = ahora). Los ID
// tokens ya emitidos siguen siendo válidos hasta su exp.
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	id, err := a.VerifyToken(ctx, accessToken)
	if err != nil {
		return err
	}
	err = a.adminCall(ctx, "update", map[string]any{
		"localId":    id.SubjectID,
		"validSince": strconv.FormatInt(time.Now().Unix(), 10),
	}, nil)
	if err != nil {
		return err
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthSignedOut, User: &capability.AuthUser{SubjectID: id.SubjectID}})
	return nil
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
		DisplayName   string `json:"displayName"`
		PhotoURL      string `json:"photoUrl"`
	} `json:"users"`
}

func (a *Auth) GetCurrentUser(ctx context.Context, accessToken string) (*capability.AuthUser, error) {
	var lr lookupResponse
	if err := a.call(ctx, "lookup", map[string]string{"idToken": accessToken}, &lr); err != nil {
		return nil, err
	}
	if len(lr.Users) == 0 {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	u := lr.Users[0]
	return &capability.AuthUser{
		SubjectID:     u.LocalID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.PhotoURL,
	}, nil
}

func (a *Auth) OnAuthStateChanged(fn func(capability.AuthEvent)) func() {
	return a.listener.Subscribe(fn)
}

// SendPasswordReset no revela si el email existe.
func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	err := a.call(ctx, "sendOobCode", map[string]string{"requestType": "PASSWORD_RESET", "email": email}, nil)
	var ce *capability.Error
	if errors.As(err, &ce) && strings.HasPrefix(ce.Message, "EMAIL_NOT_FOUND") {
		return nil
	}
	return err
}

func (a *Auth) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	var tr tokenResponse
	err := a.call(ctx, "update", map[string]any{
		"idToken": accessToken, "password": newPassword, "returnSecureToken": true,
	}, &tr)
	if err != nil {
		return err
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthPasswordUpdated, User: &capability.AuthUser{SubjectID: tr.LocalID, Email: tr.Email}})
	return nil
}

// DeleteAccount borra al dueño del token con la API de administración.
func (a *Auth) DeleteAccount(ctx context.Context, accessToken string) error {
	id, err := a.VerifyToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := a.adminCall(ctx, "delete", map[string]string{"localId": id.SubjectID}, nil); err != nil {
		return err
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthUserDeleted, User: &capability.AuthUser{
		SubjectID: id.SubjectID, Email: id.Email, DisplayName: id.DisplayName, AvatarURL: id.AvatarURL,
	}})
	return nil
}

// VerifyToken valida el ID token RS256 contra el JWKS de securetoken.
func (a *Auth) VerifyToken(ctx context.Context, token string) (*capability.ExternalIdentity, error) {
	c, err := jwt.VerifyRS256(ctx, token, a.keys, a.expect)
	if err != nil {
		return nil, err
	}
	return c.Identity(), nil
}

func (a *Auth) signedIn(s *capability.Session) *capability.Session {
	u := s.User
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthSignedIn, User: &u})
	return s
}
