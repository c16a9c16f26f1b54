package migrate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	applied map[int]bool
	ran     []int
	failOn  int
}

func (r *recordingExec) EnsureTable(context.Context) error { return nil }

func (r *recordingExec) Applied(context.Context) (map[int]bool, error) { return r.applied, nil }

func (r *recordingExec) Apply(_ context.Context, m Migration) error {
	if m.Version == r.failOn {
		return errors.New("syntax error")
	}
	r.ran = append(r.ran, m.Version)
	return nil
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/0002_events.sql": {Data: []byte("CREATE TABLE events ();")},
		"sql/0001_users.sql":  {Data: []byte("CREATE TABLE app_users ();")},
		"sql/README.md":       {Data: []byte("ignored")},
	}
}

func TestParseOrdersAndFilters(t *testing.T) {
	migs, err := New(testFS(), "sql").Parse()
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 1, migs[0].Version)
	assert.Equal(t, "users", migs[0].Name)
	assert.Equal(t, "events", migs[1].Name)
}

func TestParseDuplicateVersion(t *testing.T) {
	fsys := testFS()
	fsys["sql/0002_other.sql"] = &fstest.MapFile{Data: []byte("--")}
	_, err := New(fsys, "sql").Parse()
	require.Error(t, err)
}

func TestRunSkipsApplied(t *testing.T) {
	exec := &recordingExec{applied: map[int]bool{1: true}}
	res, err := New(testFS(), "sql").Run(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, []int{2}, res.Applied)
	assert.Equal(t, []int{2}, exec.ran)
}

func TestRunStopsOnFailure(t *testing.T) {
	exec := &recordingExec{applied: map[int]bool{}, failOn: 1}
	res, err := New(testFS(), "sql").Run(context.Background(), exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_users")
	assert.Empty(t, res.Applied)
}

// sharedDB simula una base compartida: registrar dos veces la misma versión
// falla como la PK de _migrations.
type sharedDB struct {
	lock    sync.Mutex
	mu      sync.Mutex
	applied map[int]bool
	runs    map[int]int
}

type sharedExec struct {
	db     *sharedDB
	locker bool
	events *[]string
}

func (e sharedExec) EnsureTable(context.Context) error { return nil }

func (e sharedExec) Applied(context.Context) (map[int]bool, error) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	out := make(map[int]bool, len(e.db.applied))
	for v := range e.db.applied {
		out[v] = true
	}
	if e.events != nil {
		*e.events = append(*e.events, "applied")
	}
	return out, nil
}

func (e sharedExec) Apply(_ context.Context, m Migration) error {
	time.Sleep(5 * time.Millisecond)
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	if e.db.applied[m.Version] {
		return errors.New("duplicate key value violates unique constraint")
	}
	e.db.applied[m.Version] = true
	e.db.runs[m.Version]++
	return nil
}

type lockingExec struct{ sharedExec }

func (e lockingExec) Lock(context.Context) (func(), error) {
	e.db.lock.Lock()
	if e.events != nil {
		*e.events = append(*e.events, "lock")
	}
	return func() {
		if e.events != nil {
			*e.events = append(*e.events, "unlock")
		}
		e.db.lock.Unlock()
	}, nil
}

func TestRunTakesLockBeforeReadingApplied(t *testing.T) {
	var events []string
	exec := lockingExec{sharedExec{db: &sharedDB{applied: map[int]bool{}, runs: map[int]int{}}, events: &events}}

	_, err := New(testFS(), "sql").Run(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock", "applied", "unlock"}, events)
}

func TestConcurrentRunsWithLockApplyOnce(t *testing.T) {
	db := &sharedDB{applied: map[int]bool{}, runs: map[int]int{}}
	m := New(testFS(), "sql")

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Run(context.Background(), lockingExec{sharedExec{db: db}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1}, db.runs)
}
