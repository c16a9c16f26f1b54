package capability

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeConflict, CodeOf(NewError(CodeConflict, "dup")))

	wrapped := fmt.Errorf("ctx: %w", NewError(CodeNotFound, "missing"))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(nil, CodeNotFound))
}

func TestWrapKeepsOnlyCauseText(t *testing.T) {
	type sdkErr struct{ error }
	cause := sdkErr{errors.New("pq: connection reset")}

	err := Wrap(CodeUnavailable, "database unreachable", cause)

	assert.Equal(t, "pq: connection reset", err.Details)
	var target sdkErr
	assert.False(t, errors.As(err, &target), "provider error type must not escape")
	assert.Equal(t, "unavailable: database unreachable (pq: connection reset)", err.Error())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeConflict, "duplicate key", errors.New("23505"))
	assert.True(t, errors.Is(err, &Error{Code: CodeConflict}))
	assert.False(t, errors.Is(err, &Error{Code: CodeNotFound}))
}

func TestNotImplementedMessage(t *testing.T) {
	err := NotImplemented("storage", "firebase")
	assert.Equal(t, CodeNotImplemented, err.Code)
	assert.Equal(t, "storage not yet implemented for firebase", err.Message)

	ns := NotSupported("query", "sqlite")
	assert.Equal(t, CodeNotSupported, ns.Code)
}

func TestNormalize(t *testing.T) {
	require.NoError(t, Normalize(nil, "x"))

	ce := NewError(CodeNotFound, "nope")
	assert.Same(t, ce, Normalize(ce, "x"))

	n := Normalize(errors.New("raw"), "op failed")
	assert.Equal(t, CodeInternal, CodeOf(n))
}

func TestAuthListeners(t *testing.T) {
	var l AuthListeners
	var a, b int32

	unsubA := l.Subscribe(func(AuthEvent) { atomic.AddInt32(&a, 1) })
	l.Subscribe(func(AuthEvent) { atomic.AddInt32(&b, 1) })

	l.Emit(AuthEvent{Type: AuthSignedIn})
	unsubA()
	unsubA()
	l.Emit(AuthEvent{Type: AuthSignedOut})

	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(2), atomic.LoadInt32(&b))
}

func TestCleanObjectPath(t *testing.T) {
	ok := map[string]string{
		"a.png":             "a.png",
		"/events/1/a.png":   "events/1/a.png",
		"events//1/./a.png": "events/1/a.png",
		`events\1\a.png`:    "events/1/a.png",
	}
	for in, want := range ok {
		got, err := CleanObjectPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "  ", "/", "../etc/passwd", "a/../../b", "dir/"} {
		_, err := CleanObjectPath(in)
		assert.True(t, IsCode(err, CodeInvalidArgument), in)
	}
}
