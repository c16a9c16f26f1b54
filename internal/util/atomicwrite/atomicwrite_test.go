package atomicwrite

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	require.NoError(t, WriteFile(path, []byte("one"), 0o600))
	require.NoError(t, WriteFile(path, []byte("two"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWriteReaderNoClobber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj")
	n, err := WriteReader(path, strings.NewReader("first"), Options{NoClobber: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = WriteReader(path, strings.NewReader("second"), Options{NoClobber: true})
	assert.ErrorIs(t, err, ErrExists)

	b, _ := os.ReadFile(path)
	assert.Equal(t, "first", string(b))
}

func TestNoClobberConcurrentSingleWinner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "race")
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := WriteReader(path, strings.NewReader("x"), Options{NoClobber: true}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
