package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/providers/memory"
	"github.com/dropDatabas3/agenda/internal/registry"
)

var ctx = context.Background()

type staticDB struct{ db capability.Database }

func (s staticDB) Database(context.Context) (capability.Database, error) { return s.db, nil }

type staticAuth struct{ a capability.Auth }

func (s staticAuth) Auth(context.Context) (capability.Auth, error) { return s.a, nil }

// racingDB simula que otro request inserta la fila entre el lookup y el insert.
type racingDB struct {
	*memory.Database
	once    sync.Once
	winner  string
	lookups int
}

func (r *racingDB) GetUserBySubject(ctx context.Context, sub string) (*capability.User, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	return r.Database.GetUserBySubject(ctx, sub)
}

func (r *racingDB) CreateUser(ctx context.Context, in capability.NewUser) (*capability.User, error) {
	r.once.Do(func() {
		u, _ := r.Database.CreateUser(ctx, in)
		r.winner = u.ID
	})
	return r.Database.CreateUser(ctx, in)
}

// mirrorFailDB falla todo update de espejo.
type mirrorFailDB struct{ *memory.Database }

func (m mirrorFailDB) UpdateUserMirror(context.Context, string, capability.Mirror) (*capability.User, error) {
	return nil, capability.NewError(capability.CodeUnavailable, "connection reset")
}

// brokenDB falla el lookup con un error que no es not_found.
type brokenDB struct{ *memory.Database }

func (b brokenDB) GetUserBySubject(context.Context, string) (*capability.User, error) {
	return nil, capability.Wrap(capability.CodeUnavailable, "database unreachable", errors.New("dial tcp 10.0.0.5:5432"))
}

// insertFailDB no encuentra nada y falla el insert con un error no-conflict.
type insertFailDB struct{ *memory.Database }

func (d insertFailDB) CreateUser(context.Context, capability.NewUser) (*capability.User, error) {
	return nil, capability.NewError(capability.CodeInternal, "disk full")
}

func TestResolveCreatesThenMirrors(t *testing.T) {
	db := memory.NewDatabase()
	r := NewResolver(staticDB{db})

	first, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-42", Email: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.User.ID)
	assert.Equal(t, "ext-42", first.User.ExternalSubjectID)
	assert.Equal(t, "a@b.com", first.User.Email)

	second, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-42", Email: "c@d.com"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "c@d.com", second.User.Email)

	stored, err := db.GetUserBySubject(ctx, "ext-42")
	require.NoError(t, err)
	assert.Equal(t, "c@d.com", stored.Email)
	assert.Equal(t, 1, db.UserCount())
}

func TestResolveDisplayNameChange(t *testing.T) {
	db := memory.NewDatabase()
	r := NewResolver(staticDB{db})

	a, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-7", DisplayName: "Ana"})
	require.NoError(t, err)
	b, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-7", DisplayName: "Ana María"})
	require.NoError(t, err)

	assert.Equal(t, a.User.ID, b.User.ID)
	assert.Equal(t, "ext-7", b.User.ExternalSubjectID)
	assert.Equal(t, "Ana María", b.User.DisplayName)
}

func TestResolveUnchangedSkipsUpdate(t *testing.T) {
	db := mirrorFailDB{memory.NewDatabase()}
	r := NewResolver(staticDB{db})
	id := capability.ExternalIdentity{SubjectID: "ext-1", Email: "x@y.z"}

	_, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	res, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.False(t, res.Stale, "no update attempted when mirrors match")
}

func TestResolveConcurrentFirstLogins(t *testing.T) {
	db := memory.NewDatabase()
	r := NewResolver(staticDB{db})

	const n = 50
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-race", Email: "r@agenda.test"})
			errs[i] = err
			if err == nil {
				ids[i] = res.User.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, db.UserCount())
}

func TestResolveConflictIsRecoveredByRefetch(t *testing.T) {
	db := &racingDB{Database: memory.NewDatabase()}
	r := NewResolver(staticDB{db})

	res, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-9"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, db.winner, res.User.ID)
	assert.Equal(t, 1, db.UserCount())
}

func TestResolveMirrorFailureReturnsStoredRow(t *testing.T) {
	inner := memory.NewDatabase()
	orig, err := inner.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "ext-42", Email: "a@b.com"})
	require.NoError(t, err)

	r := NewResolver(staticDB{mirrorFailDB{inner}})
	res, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-42", Email: "c@d.com"})
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, orig.ID, res.User.ID)
	assert.Equal(t, "a@b.com", res.User.Email)
}

func TestResolveOtherFailures(t *testing.T) {
	cases := map[string]capability.Database{
		"lookup":  brokenDB{memory.NewDatabase()},
		"insert":  insertFailDB{memory.NewDatabase()},
		"subject": memory.NewDatabase(),
	}
	for name, db := range cases {
		t.Run(name, func(t *testing.T) {
			sub := "ext-1"
			if name == "subject" {
				sub = ""
			}
			_, err := NewResolver(staticDB{db}).Resolve(ctx, capability.ExternalIdentity{SubjectID: sub})
			require.Error(t, err)
			assert.True(t, IsResolutionFailed(err))
		})
	}
}

func TestResolveUnimplementedDatabase(t *testing.T) {
	reg := registry.New(config.ProviderConfig{Database: "mongo"})
	_, err := NewResolver(reg).Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-1"})
	require.Error(t, err)
	assert.True(t, IsResolutionFailed(err))
	assert.ErrorIs(t, err, registry.ErrNotImplemented)
}

func TestResolverThroughRegistryOverride(t *testing.T) {
	reg := registry.New(config.ProviderConfig{Database: "supabase"})
	double := memory.NewDatabase()
	reg.OverrideDatabase(double)

	res, err := NewResolver(reg).Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-5"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, double.UserCount())
}

// ─── Verifier ───

type unavailableAuth struct{ capability.Auth }

func (unavailableAuth) VerifyToken(context.Context, string) (*capability.ExternalIdentity, error) {
	return nil, capability.NewError(capability.CodeUnavailable, "jwks fetch failed")
}

type noSubjectAuth struct{ capability.Auth }

func (noSubjectAuth) VerifyToken(context.Context, string) (*capability.ExternalIdentity, error) {
	return &capability.ExternalIdentity{Email: "x@y.z"}, nil
}

func TestExtractBearer(t *testing.T) {
	tok, err := ExtractBearer("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, err = ExtractBearer("  bearer   abc ")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = ExtractBearer("")
	assert.ErrorIs(t, err, ErrMissingCredential)
	for _, h := range []string{"Basic dXNlcg==", "Bearer", "Bearer ", "Token abc", "Bearer a b"} {
		_, err = ExtractBearer(h)
		assert.ErrorIs(t, err, ErrMalformedCredential, h)
	}
}

func TestVerify(t *testing.T) {
	auth, err := memory.NewAuth([]byte("secret"), time.Hour)
	require.NoError(t, err)
	v := NewVerifier(staticAuth{auth})

	tok, err := auth.IssueToken("ext-42", "a@b.com", "Ana")
	require.NoError(t, err)

	id, err := v.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "ext-42", id.SubjectID)
	assert.Equal(t, "a@b.com", id.Email)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = v.Verify(ctx, "nope")
	assert.ErrorIs(t, err, ErrMalformedCredential)

	other, err := memory.NewAuth([]byte("other"), time.Hour)
	require.NoError(t, err)
	foreign, err := other.IssueToken("ext-42", "", "")
	require.NoError(t, err)
	_, err = v.Verify(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCredential)
	assert.True(t, IsCredentialError(err))
}

func TestVerifyProviderProblems(t *testing.T) {
	_, err := NewVerifier(staticAuth{unavailableAuth{}}).Verify(ctx, "tok")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.False(t, IsCredentialError(err))

	_, err = NewVerifier(registry.New(config.ProviderConfig{Auth: "auth0"})).Verify(ctx, "tok")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = NewVerifier(staticAuth{noSubjectAuth{}}).Verify(ctx, "tok")
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestPipelineAuthenticate(t *testing.T) {
	auth, err := memory.NewAuth([]byte("secret"), time.Hour)
	require.NoError(t, err)
	db := memory.NewDatabase()
	p := NewPipeline(NewVerifier(staticAuth{auth}), NewResolver(staticDB{db}))

	tok, err := auth.IssueToken("ext-42", "a@b.com", "")
	require.NoError(t, err)

	ac, err := p.Authenticate(ctx, "Bearer "+tok)
	require.NoError(t, err)
	assert.Equal(t, "ext-42", ac.ExternalSubjectID)
	assert.NotEmpty(t, ac.InternalUserID)
	assert.Equal(t, "a@b.com", ac.Email)

	withCtx := WithAuthContext(ctx, ac)
	got, ok := FromContext(withCtx)
	require.True(t, ok)
	assert.Same(t, ac, got)
	_, ok = FromContext(ctx)
	assert.False(t, ok)

	_, err = p.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrMissingCredential)
}
