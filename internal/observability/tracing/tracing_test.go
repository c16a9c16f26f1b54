package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "agenda", "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := Start(context.Background(), "identity.resolve")
	defer span.End()
	assert.NotNil(t, ctx)
}
