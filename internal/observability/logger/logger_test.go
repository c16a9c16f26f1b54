package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromFallsBackToGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("hello")

	assert.Equal(t, 1, logs.Len())
}

func TestFromUsesScopedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	scoped := zap.New(core).With(RequestID("req-1"))

	ctx := ToContext(context.Background(), scoped)
	From(ctx).Info("scoped", Subject("ext-42"))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "ext-42", fields["subject"])
	}
}

func TestErrField(t *testing.T) {
	assert.Equal(t, zapcore.SkipType, Err(nil).Type)
	assert.Equal(t, zapcore.ErrorType, Err(errors.New("x")).Type)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a…@a….test", MaskEmail(" Ana@Agenda.test "))
	assert.Equal(t, "b@x.io", MaskEmail("b@x.io"))
	assert.Equal(t, "", MaskEmail(""))
	assert.Equal(t, "***", MaskEmail("ab"))
	assert.Equal(t, "n…e", MaskEmail("no-arroba"))
}
