package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/registry"
)

var ctx = context.Background()

func newAuth(t *testing.T) *Auth {
	t.Helper()
	a, err := NewAuth([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	return a
}

func TestAuthSignUpSignInAndVerify(t *testing.T) {
	a := newAuth(t)

	var events []capability.AuthEventType
	var mu sync.Mutex
	unsub := a.OnAuthStateChanged(func(ev capability.AuthEvent) {
		mu.Lock()
		events = append(events, ev.Type)
		mu.Unlock()
	})
	defer unsub()

	sess, err := a.SignUp(ctx, capability.SignUpInput{Email: "Ana@Agenda.test", Password: "secreto1", DisplayName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana@agenda.test", sess.User.Email)

	_, err = a.SignUp(ctx, capability.SignUpInput{Email: "ana@agenda.test", Password: "secreto1"})
	assert.Equal(t, capability.CodeConflict, capability.CodeOf(err))

	_, err = a.SignIn(ctx, "ana@agenda.test", "wrong-pass")
	assert.Equal(t, capability.CodeUnauthenticated, capability.CodeOf(err))

	sess, err = a.SignIn(ctx, "ana@agenda.test", "secreto1")
	require.NoError(t, err)

	id, err := a.VerifyToken(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.SubjectID, id.SubjectID)
	assert.Equal(t, "Ana", id.DisplayName)

	require.NoError(t, a.SignOut(ctx, sess.AccessToken))
	_, err = a.VerifyToken(ctx, sess.AccessToken)
	assert.Equal(t, capability.CodeInvalidCredential, capability.CodeOf(err))

	mu.Lock()
	assert.Equal(t, []capability.AuthEventType{capability.AuthSignedIn, capability.AuthSignedIn, capability.AuthSignedOut}, events)
	mu.Unlock()
}

func TestAuthPasswordLifecycle(t *testing.T) {
	a := newAuth(t)
	sess, err := a.SignUp(ctx, capability.SignUpInput{Email: "b@agenda.test", Password: "primera1"})
	require.NoError(t, err)

	require.NoError(t, a.SendPasswordReset(ctx, "b@agenda.test"))
	require.NoError(t, a.SendPasswordReset(ctx, "nobody@agenda.test"))
	assert.Equal(t, []string{"b@agenda.test"}, a.PasswordResets())

	require.NoError(t, a.UpdatePassword(ctx, sess.AccessToken, "segunda2"))
	_, err = a.SignIn(ctx, "b@agenda.test", "segunda2")
	require.NoError(t, err)

	u, err := a.GetCurrentUser(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "b@agenda.test", u.Email)

	require.NoError(t, a.DeleteAccount(ctx, sess.AccessToken))
	_, err = a.SignIn(ctx, "b@agenda.test", "segunda2")
	assert.Equal(t, capability.CodeUnauthenticated, capability.CodeOf(err))
}

func TestAuthFederatedIsStable(t *testing.T) {
	a := newAuth(t)
	s1, err := a.SignInWithFederatedProvider(ctx, capability.FederatedSignIn{Provider: "google.com", IDToken: "idt"})
	require.NoError(t, err)
	s2, err := a.SignInWithFederatedProvider(ctx, capability.FederatedSignIn{Provider: "google.com", IDToken: "idt"})
	require.NoError(t, err)
	assert.Equal(t, s1.User.SubjectID, s2.User.SubjectID)

	_, err = a.SignInWithFederatedProvider(ctx, capability.FederatedSignIn{Provider: "google.com"})
	assert.Equal(t, capability.CodeInvalidArgument, capability.CodeOf(err))
}

func TestAuthVerifyGarbage(t *testing.T) {
	a := newAuth(t)
	_, err := a.VerifyToken(ctx, "garbage")
	assert.Equal(t, capability.CodeMalformedCredential, capability.CodeOf(err))

	_, err = NewAuth(nil, 0)
	assert.Equal(t, capability.CodeInvalidArgument, capability.CodeOf(err))
}

func TestDatabaseUniqueSubject(t *testing.T) {
	db := NewDatabase()
	u, err := db.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "ext-42", Email: "a@b.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	_, err = db.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "ext-42"})
	assert.Equal(t, capability.CodeConflict, capability.CodeOf(err))

	got, err := db.GetUserBySubject(ctx, "ext-42")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = db.GetUserBySubject(ctx, "ext-43")
	assert.Equal(t, capability.CodeNotFound, capability.CodeOf(err))

	upd, err := db.UpdateUserMirror(ctx, u.ID, capability.Mirror{Email: "c@d.com"})
	require.NoError(t, err)
	assert.Equal(t, "c@d.com", upd.Email)
	assert.Equal(t, u.ID, upd.ID)
	assert.Equal(t, 1, db.UserCount())
}

func TestDatabaseEventsAndProfiles(t *testing.T) {
	db := NewDatabase()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	for i, title := range []string{"Feria", "Concierto", "Cine"} {
		_, err := db.CreateEvent(ctx, capability.EventInput{OrganizerID: "org-1", Title: title, StartsAt: base.Add(time.Duration(2-i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := db.CreateEvent(ctx, capability.EventInput{Title: "sin organizador"})
	assert.Equal(t, capability.CodeInvalidArgument, capability.CodeOf(err))

	list, err := db.GetEvents(ctx, capability.EventFilter{OrganizerID: "org-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Cine", list[0].Title)
	assert.Equal(t, "pending", list[0].Status)

	approved := "approved"
	upd, err := db.UpdateEvent(ctx, list[0].ID, capability.EventPatch{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, "approved", upd.Status)

	require.NoError(t, db.DeleteEvent(ctx, list[0].ID))
	_, err = db.GetEvent(ctx, list[0].ID)
	assert.Equal(t, capability.CodeNotFound, capability.CodeOf(err))

	u, err := db.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "ext-1"})
	require.NoError(t, err)
	bio := "vecina del barrio"
	p, err := db.UpdateProfile(ctx, u.ID, capability.ProfilePatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, bio, p.Bio)

	_, err = db.UpdateProfile(ctx, "missing", capability.ProfilePatch{Bio: &bio})
	assert.Equal(t, capability.CodeNotFound, capability.CodeOf(err))
}

func TestDatabaseGenericOpsNotSupported(t *testing.T) {
	db := NewDatabase()
	_, err := db.Query(ctx, "events", nil)
	assert.Equal(t, capability.CodeNotSupported, capability.CodeOf(err))
	_, err = db.Delete(ctx, "events", nil)
	assert.Equal(t, capability.CodeNotSupported, capability.CodeOf(err))
}

func TestStorage(t *testing.T) {
	s := NewStorage("")
	obj, err := s.Upload(ctx, "/events/1.png", strings.NewReader("png"), capability.UploadOptions{ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, capability.DefaultBucket, obj.Bucket)
	assert.Equal(t, "memory://event-images/events/1.png", obj.PublicURL)

	_, err = s.Upload(ctx, "events/1.png", strings.NewReader("x"), capability.UploadOptions{})
	assert.Equal(t, capability.CodeConflict, capability.CodeOf(err))
	_, err = s.Upload(ctx, "events/1.png", strings.NewReader("x"), capability.UploadOptions{Upsert: true})
	require.NoError(t, err)

	list, err := s.List(ctx, "events/", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Size)

	require.NoError(t, s.Delete(ctx, []string{"events/1.png"}, ""))
	_, ok := s.Open("events/1.png", "")
	assert.False(t, ok)
}

func TestFunctions(t *testing.T) {
	f := NewFunctions()
	res, err := f.Invoke(ctx, "echo", capability.InvokeOptions{Body: strings.NewReader(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(res.Body))

	f.Handle("notify", func(_ context.Context, method string, _ map[string]string, body []byte) (*capability.InvokeResult, error) {
		return &capability.InvokeResult{Status: 202, Body: []byte(method)}, nil
	})
	res, err = f.Invoke(ctx, "notify", capability.InvokeOptions{Method: "PUT"})
	require.NoError(t, err)
	assert.Equal(t, 202, res.Status)
	assert.Equal(t, "PUT", string(res.Body))

	_, err = f.Invoke(ctx, "missing", capability.InvokeOptions{})
	assert.Equal(t, capability.CodeNotFound, capability.CodeOf(err))
}

func TestRegisteredInRegistry(t *testing.T) {
	r := registry.New(config.ProviderConfig{
		Auth: Name, Database: Name, Storage: Name, Functions: Name,
		Memory: config.MemoryConfig{JWTSecret: "s", TokenTTL: "1h"},
	})
	require.NoError(t, r.Validate())
	require.NoError(t, r.Warm(ctx))

	db, err := r.Database(ctx)
	require.NoError(t, err)
	assert.Equal(t, Name, db.Name())
}
