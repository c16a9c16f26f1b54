package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/identity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "agenda.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type staticDB struct{ db capability.Database }

func (s staticDB) Database(context.Context) (capability.Database, error) { return s.db, nil }

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, capability.IsCode(err, capability.CodeInvalidArgument))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agenda.db")
	s1, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetUserBySubject(ctx, "ext-1")
	assert.True(t, capability.IsCode(err, capability.CodeNotFound))

	u, err := s.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "ext-1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	got, err := s.GetUserBySubject(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Empty(t, got.DisplayName)

	_, err = s.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "ext-1"})
	require.Error(t, err)
	assert.True(t, capability.IsCode(err, capability.CodeConflict))

	upd, err := s.UpdateUserMirror(ctx, u.ID, capability.Mirror{DisplayName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, upd.ID)
	assert.Equal(t, "Ana", upd.DisplayName)
	assert.Empty(t, upd.Email, "mirror overwrite clears email")

	_, err = s.UpdateUserMirror(ctx, "missing", capability.Mirror{})
	assert.True(t, capability.IsCode(err, capability.CodeNotFound))
}

func TestConcurrentResolveCreatesOneRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := identity.NewResolver(staticDB{db: s})

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(ctx, capability.ExternalIdentity{SubjectID: "ext-42", Email: "x@example.com"})
			if assert.NoError(t, err) {
				ids[i] = res.User.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_users WHERE external_subject_id = 'ext-42'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u, err := s.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "org"})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	late, err := s.CreateEvent(ctx, capability.EventInput{OrganizerID: u.ID, Title: "Late", StartsAt: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	early, err := s.CreateEvent(ctx, capability.EventInput{OrganizerID: u.ID, Title: "Early", StartsAt: base, Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, "pending", late.Status)

	all, err := s.GetEvents(ctx, capability.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, early.ID, all[0].ID)
	assert.True(t, all[0].StartsAt.Equal(base))

	approved, err := s.GetEvents(ctx, capability.EventFilter{Status: "approved"})
	require.NoError(t, err)
	require.Len(t, approved, 1)

	title := "Later"
	img := "https://cdn.example.com/x.png"
	upd, err := s.UpdateEvent(ctx, late.ID, capability.EventPatch{Title: &title, ImageURL: &img})
	require.NoError(t, err)
	assert.Equal(t, "Later", upd.Title)
	assert.Equal(t, img, upd.ImageURL)

	require.NoError(t, s.DeleteEvent(ctx, late.ID))
	_, err = s.GetEvent(ctx, late.ID)
	assert.True(t, capability.IsCode(err, capability.CodeNotFound))
	assert.True(t, capability.IsCode(s.DeleteEvent(ctx, late.ID), capability.CodeNotFound))

	_, err = s.CreateEvent(ctx, capability.EventInput{OrganizerID: u.ID})
	assert.True(t, capability.IsCode(err, capability.CodeInvalidArgument))
}

func TestProfileUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u, err := s.CreateUser(ctx, capability.NewUser{ExternalSubjectID: "p"})
	require.NoError(t, err)

	_, err = s.GetProfile(ctx, u.ID)
	assert.True(t, capability.IsCode(err, capability.CodeNotFound))

	bio := "hola"
	p, err := s.UpdateProfile(ctx, u.ID, capability.ProfilePatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hola", p.Bio)

	locale := "es-AR"
	p, err = s.UpdateProfile(ctx, u.ID, capability.ProfilePatch{Locale: &locale})
	require.NoError(t, err)
	assert.Equal(t, "hola", p.Bio)
	assert.Equal(t, "es-AR", p.Locale)

	_, err = s.UpdateProfile(ctx, "nobody", capability.ProfilePatch{Bio: &bio})
	assert.True(t, capability.IsCode(err, capability.CodeNotFound))
}

func TestGenericOpsNotSupported(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Query(context.Background(), "events", nil)
	assert.True(t, capability.IsCode(err, capability.CodeNotSupported))
	_, err = s.Delete(context.Background(), "events", nil)
	assert.True(t, capability.IsCode(err, capability.CodeNotSupported))
}
