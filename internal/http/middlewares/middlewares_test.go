package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/identity"
	"github.com/dropDatabas3/agenda/internal/providers/memory"
	"github.com/dropDatabas3/agenda/internal/rate"
)

type staticAuth struct{ a capability.Auth }

func (s staticAuth) Auth(context.Context) (capability.Auth, error) { return s.a, nil }

type staticDB struct{ db capability.Database }

func (s staticDB) Database(context.Context) (capability.Database, error) { return s.db, nil }

type brokenDB struct{ *memory.Database }

func (brokenDB) GetUserBySubject(context.Context, string) (*capability.User, error) {
	return nil, capability.NewError(capability.CodeUnavailable, "db down")
}

type fixture struct {
	auth *memory.Auth
	db   *memory.Database
	pipe PipelineAuthenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth, err := memory.NewAuth([]byte("mw-secret"), time.Hour)
	require.NoError(t, err)
	db := memory.NewDatabase()
	p := identity.NewPipeline(identity.NewVerifier(staticAuth{auth}), identity.NewResolver(staticDB{db}))
	return &fixture{auth: auth, db: db, pipe: PipelineAuthenticator{p}}
}

func (f *fixture) token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := f.auth.IssueToken(sub, "a@b.com", "Ana")
	require.NoError(t, err)
	return tok
}

// capture registra si el handler corrió y con qué AuthContext.
type capture struct {
	called bool
	ac     *identity.AuthContext
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.ac, _ = GetAuthContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func do(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuthNoHeader(t *testing.T) {
	f := newFixture(t)
	var c capture
	rec := do(RequireAuth(f.pipe)(c.handler()), "")

	assert.False(t, c.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="agenda"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, map[string]string{
		"error":   "Unauthorized",
		"message": "Missing or invalid Authorization header. Expected: Bearer <token>",
	}, decode(t, rec))
}

func TestRequireAuthWrongScheme(t *testing.T) {
	f := newFixture(t)
	var c capture
	rec := do(RequireAuth(f.pipe)(c.handler()), "Basic dXNlcjpwYXNz")

	assert.False(t, c.called)
	assert.Equal(t, MsgMissingHeader, decode(t, rec)["message"])
}

func TestRequireAuthInvalidToken(t *testing.T) {
	f := newFixture(t)
	var c capture
	rec := do(RequireAuth(f.pipe)(c.handler()), "Bearer not.a.jwt")

	assert.False(t, c.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgInvalidToken, decode(t, rec)["message"])
}

func TestRequireAuthResolverFailureIsGeneric(t *testing.T) {
	auth, err := memory.NewAuth([]byte("mw-secret"), time.Hour)
	require.NoError(t, err)
	p := identity.NewPipeline(identity.NewVerifier(staticAuth{auth}), identity.NewResolver(staticDB{brokenDB{memory.NewDatabase()}}))
	tok, err := auth.IssueToken("ext-1", "", "")
	require.NoError(t, err)

	var c capture
	rec := do(RequireAuth(PipelineAuthenticator{p})(c.handler()), "Bearer "+tok)

	assert.False(t, c.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, MsgAuthFailed, body["message"])
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestRequireAuthSuccess(t *testing.T) {
	f := newFixture(t)
	var c capture
	rec := do(RequireAuth(f.pipe)(c.handler()), "Bearer "+f.token(t, "ext-42"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, c.called)
	require.NotNil(t, c.ac)
	assert.Equal(t, "ext-42", c.ac.ExternalSubjectID)
	assert.NotEmpty(t, c.ac.InternalUserID)
	assert.Equal(t, "Ana", c.ac.DisplayName)
}

func TestOptionalAuth(t *testing.T) {
	f := newFixture(t)

	t.Run("no header", func(t *testing.T) {
		var c capture
		rec := do(OptionalAuth(f.pipe)(c.handler()), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, c.called)
		assert.Nil(t, c.ac)
	})

	t.Run("invalid token", func(t *testing.T) {
		var c capture
		rec := do(OptionalAuth(f.pipe)(c.handler()), "Bearer garbage")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, c.called)
		assert.Nil(t, c.ac)
	})

	t.Run("valid token", func(t *testing.T) {
		var c capture
		do(OptionalAuth(f.pipe)(c.handler()), "Bearer "+f.token(t, "ext-7"))
		require.NotNil(t, c.ac)
		assert.Equal(t, "ext-7", c.ac.ExternalSubjectID)
	})
}

func TestMustAuthContextPanicsWithoutAuth(t *testing.T) {
	assert.Panics(t, func() { MustAuthContext(context.Background()) })
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "h") }), mk("A"), mk("B"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"A", "B", "h"}, order)
}

func TestRequestIDAndRecover(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		panic("boom")
	}), WithRequestID(), WithLogging(), WithRecover())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "rid-123", seen)
	assert.Equal(t, "rid-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubLimiter struct {
	res rate.Result
	err error
}

func (s stubLimiter) Allow(context.Context, string) (rate.Result, error) { return s.res, s.err }

func TestWithRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	denied := WithRateLimit(RateLimitConfig{Limiter: stubLimiter{res: rate.Result{Allowed: false, RetryAfter: 30 * time.Second}}, Whitelist: []string{"/healthz"}})(ok)
	rec := httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := WithRateLimit(RateLimitConfig{Limiter: stubLimiter{err: errors.New("redis down")}})(ok)
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(r, trusted))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r, trusted))

	// el cliente mete IPs falsas a la izquierda; cuenta el último hop no confiable
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.9, 192.168.1.1")
	assert.Equal(t, "203.0.113.9", clientIP(r, trusted))

	// todos los hops son de confianza
	r.Header.Set("X-Forwarded-For", "10.9.9.9")
	assert.Equal(t, "10.9.9.9", clientIP(r, trusted))
}

func TestClientIPIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:4242"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	assert.Equal(t, "198.51.100.7", clientIP(r, nil))

	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", clientIP(r, trusted))
}

func TestRateLimitNotBypassedBySpoofedForwardedFor(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := WithRateLimit(RateLimitConfig{Limiter: rate.NewMemoryLimiter(1, time.Minute)})(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
		r.RemoteAddr = "198.51.100.7:4242"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "::1/128", got[1].String())

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestWithCORS(t *testing.T) {
	h := WithCORS([]string{"https://app.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
