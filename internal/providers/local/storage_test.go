package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/agenda/internal/capability"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), "http://localhost:8080/files/", "")
	require.NoError(t, err)
	return s
}

func TestUploadAndServe(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	obj, err := s.Upload(ctx, "events/e1/cover image.png", strings.NewReader("png-bytes"), capability.UploadOptions{ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, capability.DefaultBucket, obj.Bucket)
	assert.Equal(t, int64(9), obj.Size)
	assert.Equal(t, "http://localhost:8080/files/event-images/events/e1/cover%20image.png", obj.PublicURL)

	f, err := s.Open("", "events/e1/cover image.png")
	require.NoError(t, err)
	defer f.Close()
	b, _ := io.ReadAll(f)
	assert.Equal(t, "png-bytes", string(b))
}

func TestUploadConflictAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Upload(ctx, "a.txt", strings.NewReader("1"), capability.UploadOptions{})
	require.NoError(t, err)
	_, err = s.Upload(ctx, "a.txt", strings.NewReader("2"), capability.UploadOptions{})
	assert.True(t, capability.IsCode(err, capability.CodeConflict))
	_, err = s.Upload(ctx, "a.txt", strings.NewReader("3"), capability.UploadOptions{Upsert: true})
	require.NoError(t, err)
}

func TestRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Upload(ctx, "../../etc/passwd", strings.NewReader("x"), capability.UploadOptions{})
	assert.True(t, capability.IsCode(err, capability.CodeInvalidArgument))
	_, err = s.Upload(ctx, "ok.txt", strings.NewReader("x"), capability.UploadOptions{Bucket: "../other"})
	assert.True(t, capability.IsCode(err, capability.CodeInvalidArgument))
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for _, p := range []string{"events/1/a.png", "events/1/b.png", "events/2/c.png", "avatars/u.png"} {
		_, err := s.Upload(ctx, p, strings.NewReader(p), capability.UploadOptions{})
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "events/1", "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "events/1/a.png", list[0].Name)
	assert.Equal(t, int64(len("events/1/a.png")), list[0].Size)

	require.NoError(t, s.Delete(ctx, []string{"events/1/a.png", "missing.png"}, ""))
	list, err = s.List(ctx, "events/", "")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	empty, err := s.List(ctx, "", "unused-bucket")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.Open("", "events/1/a.png")
	assert.True(t, capability.IsCode(err, capability.CodeNotFound))
}

func TestNewStorageRequiresRoot(t *testing.T) {
	_, err := NewStorage("", "http://x", "")
	assert.True(t, capability.IsCode(err, capability.CodeInvalidArgument))
}
