package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/jwt"
)

// Issuer iss de los tokens emitidos por Auth.
const Issuer = "agenda-memory"

const minPasswordLen = 6

type account struct {
	user         capability.AuthUser
	passwordHash []byte
}

// Auth identity provider en memoria: bcrypt para passwords, HS256 para sesiones.
type Auth struct {
	secret []byte
	ttl    time.Duration

	mu       sync.RWMutex
	bySub    map[string]*account
	byEmail  map[string]string // email → sub
	revoked  map[string]time.Time
	resets   []string
	listener capability.AuthListeners
}

// NewAuth crea el provider. ttl <= 0 usa 1h.
func NewAuth(secret []byte, ttl time.Duration) (*Auth, error) {
	if len(secret) == 0 {
		return nil, capability.NewError(capability.CodeInvalidArgument, "memory auth requires a jwt secret")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Auth{
		secret:  secret,
		ttl:     ttl,
		bySub:   make(map[string]*account),
		byEmail: make(map[string]string),
		revoked: make(map[string]time.Time),
	}, nil
}

var _ capability.Auth = (*Auth)(nil)

func (a *Auth) Name() string { return Name }

func (a *Auth) SignUp(ctx context.Context, in capability.SignUpInput) (*capability.Session, error) {
	email := normEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, capability.NewError(capability.CodeInvalidArgument, "invalid email")
	}
	if len(in.Password) < minPasswordLen {
		return nil, capability.NewError(capability.CodeInvalidArgument, "password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, capability.Wrap(capability.CodeInternal, "hash password", err)
	}

	a.mu.Lock()
	if _, exists := a.byEmail[email]; exists {
		a.mu.Unlock()
		return nil, capability.NewError(capability.CodeConflict, "email already registered")
	}
	acc := &account{
		user:         capability.AuthUser{SubjectID: uuid.NewString(), Email: email, DisplayName: in.DisplayName},
		passwordHash: hash,
	}
	a.bySub[acc.user.SubjectID] = acc
	a.byEmail[email] = acc.user.SubjectID
	a.mu.Unlock()

	return a.startSession(acc.user)
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*capability.Session, error) {
	a.mu.RLock()
	acc := a.bySub[a.byEmail[normEmail(email)]]
	a.mu.RUnlock()

	if acc == nil || acc.passwordHash == nil ||
		bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		return nil, capability.NewError(capability.CodeUnauthenticated, "invalid email or password")
	}
	return a.startSession(acc.user)
}

// SignInWithFederatedProvider acepta el id token del IdP como opaco: la misma
// combinación provider+token mapea siempre a la misma cuenta.
func (a *Auth) SignInWithFederatedProvider(ctx context.Context, in capability.FederatedSignIn) (*capability.Session, error) {
	if in.Provider == "" || in.IDToken == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "provider and id token are required")
	}
	sum := sha256.Sum256([]byte(in.Provider + "|" + in.IDToken))
	sub := in.Provider + ":" + hex.EncodeToString(sum[:8])

	a.mu.Lock()
	acc, ok := a.bySub[sub]
	if !ok {
		acc = &account{user: capability.AuthUser{SubjectID: sub, EmailVerified: true}}
		a.bySub[sub] = acc
	}
	a.mu.Unlock()

	return a.startSession(acc.user)
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	c, err := a.verify(accessToken)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.revoked[c.ID] = c.ExpiresAt.Time
	a.mu.Unlock()

	a.listener.Emit(capability.AuthEvent{Type: capability.AuthSignedOut, User: &capability.AuthUser{SubjectID: c.Subject}})
	return nil
}

func (a *Auth) GetCurrentUser(ctx context.Context, accessToken string) (*capability.AuthUser, error) {
	c, err := a.verify(accessToken)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.bySub[c.Subject]
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	u := acc.user
	return &u, nil
}

func (a *Auth) OnAuthStateChanged(fn func(capability.AuthEvent)) func() {
	return a.listener.Subscribe(fn)
}

// SendPasswordReset no revela si el email existe.
func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	email = normEmail(email)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[email]; ok {
		a.resets = append(a.resets, email)
	}
	return nil
}

// PasswordResets emails a los que se "envió" un reset.
func (a *Auth) PasswordResets() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.resets...)
}

func (a *Auth) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	c, err := a.verify(accessToken)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLen {
		return capability.NewError(capability.CodeInvalidArgument, "password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return capability.Wrap(capability.CodeInternal, "hash password", err)
	}

	a.mu.Lock()
	acc, ok := a.bySub[c.Subject]
	if ok {
		acc.passwordHash = hash
	}
	a.mu.Unlock()
	if !ok {
		return capability.NewError(capability.CodeNotFound, "user not found")
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthPasswordUpdated, User: &capability.AuthUser{SubjectID: c.Subject}})
	return nil
}

func (a *Auth) DeleteAccount(ctx context.Context, accessToken string) error {
	c, err := a.verify(accessToken)
	if err != nil {
		return err
	}
	a.mu.Lock()
	acc, ok := a.bySub[c.Subject]
	if ok {
		delete(a.bySub, c.Subject)
		delete(a.byEmail, acc.user.Email)
		a.revoked[c.ID] = c.ExpiresAt.Time
	}
	a.mu.Unlock()
	if !ok {
		return capability.NewError(capability.CodeNotFound, "user not found")
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthUserDeleted, User: &acc.user})
	return nil
}

func (a *Auth) VerifyToken(ctx context.Context, token string) (*capability.ExternalIdentity, error) {
	c, err := a.verify(token)
	if err != nil {
		return nil, err
	}
	return c.Identity(), nil
}

// IssueToken emite un token para sub sin pasar por SignUp. Para tests y seeds.
func (a *Auth) IssueToken(sub, email, displayName string) (string, error) {
	c := jwt.NewClaims(sub, Issuer, "", a.ttl)
	c.ID = uuid.NewString()
	c.Email = email
	c.Name = displayName
	tok, err := jwt.SignHS256(c, a.secret)
	if err != nil {
		return "", capability.Wrap(capability.CodeInternal, "sign token", err)
	}
	return tok, nil
}

func (a *Auth) verify(token string) (*jwt.Claims, error) {
	c, err := jwt.VerifyHS256(token, a.secret, jwt.Expect{Issuer: Issuer})
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	_, revoked := a.revoked[c.ID]
	a.mu.RUnlock()
	if revoked {
		return nil, capability.NewError(capability.CodeInvalidCredential, "token revoked")
	}
	return c, nil
}

func (a *Auth) startSession(u capability.AuthUser) (*capability.Session, error) {
	tok, err := a.IssueToken(u.SubjectID, u.Email, u.DisplayName)
	if err != nil {
		return nil, err
	}
	a.listener.Emit(capability.AuthEvent{Type: capability.AuthSignedIn, User: &u})
	return &capability.Session{AccessToken: tok, ExpiresAt: time.Now().Add(a.ttl), User: u}, nil
}

func normEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
