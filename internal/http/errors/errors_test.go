package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/agenda/internal/capability"
)

func TestWriteErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrUnauthorized.WithMessage("Invalid or expired token"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "Unauthorized", "message": "Invalid or expired token"}, body)
}

func TestFromCapabilityHidesDetails(t *testing.T) {
	ce := capability.Wrap(capability.CodeNotFound, "event not found", stderrors.New("no rows in result set"))
	rec := httptest.NewRecorder()
	WriteError(rec, ce)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no rows")
	assert.Contains(t, rec.Body.String(), "event not found")
}

func TestFromErrorMapping(t *testing.T) {
	cases := map[string]int{
		capability.CodeConflict:        http.StatusConflict,
		capability.CodeInvalidArgument: http.StatusBadRequest,
		capability.CodeNotSupported:    http.StatusNotImplemented,
		capability.CodeUnavailable:     http.StatusServiceUnavailable,
		capability.CodeUnauthenticated: http.StatusUnauthorized,
		capability.CodeInternal:        http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, FromError(capability.NewError(code, "x")).HTTPStatus, code)
	}

	generic := FromError(stderrors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, generic.HTTPStatus)
	assert.Equal(t, "An unexpected error occurred.", generic.Message)
}

func TestCopiesDoNotMutateBase(t *testing.T) {
	_ = ErrBadRequest.WithDetail("title is required")
	assert.Empty(t, ErrBadRequest.Detail)
}
