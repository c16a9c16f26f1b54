package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeySetUnavailable no se pudo obtener el JWKS (red, 5xx, JSON inválido).
	ErrKeySetUnavailable = errors.New("jwks unavailable")
	// ErrKeyNotFound el kid del token no está en el JWKS aun después de refrescar.
	ErrKeyNotFound = errors.New("jwks: kid not found")
)

const (
	defaultJWKSTTL = time.Hour
	// minRefreshInterval tiempo mínimo entre fetches exitosos del JWKS. Un kid
	// desconocido dentro de esa ventana no dispara otro fetch.
	minRefreshInterval = 30 * time.Second
	// unknownKidTTL cuánto se recuerda un kid que no estaba en el JWKS.
	unknownKidTTL  = 30 * time.Second
	defaultTimeout = 10 * time.Second
)

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// KeySet claves públicas RSA publicadas en un endpoint JWKS.
// Las claves se cachean por kid respetando Cache-Control max-age; el fetch es
// de-duplicado entre requests concurrentes y no depende del contexto de un
// request en particular.
type KeySet struct {
	url     string
	http    *http.Client
	timeout time.Duration

	keys    *cache.Cache
	unknown *cache.Cache
	sf      singleflight.Group

	minRefresh time.Duration
	now        func() time.Time

	mu          sync.Mutex
	etag        string
	snapshot    map[string]*rsa.PublicKey // último JWKS decodificado, para los 304
	lastRefresh time.Time
}

// NewKeySet crea un KeySet para url. client nil = timeout de 10s.
func NewKeySet(url string, client *http.Client) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	timeout := client.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &KeySet{
		url:        url,
		http:       client,
		timeout:    timeout,
		keys:       cache.New(defaultJWKSTTL, 10*time.Minute),
		unknown:    cache.New(unknownKidTTL, 10*time.Minute),
		minRefresh: minRefreshInterval,
		now:        time.Now,
	}
}

// Key devuelve la clave para kid, refrescando el JWKS si no está en cache.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if v, ok := ks.keys.Get(kid); ok {
		return v.(*rsa.PublicKey), nil
	}
	if _, ok := ks.unknown.Get(kid); ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}

	if ks.recentlyRefreshed() {
		// El JWKS vigente no tiene el kid: se marca sin volver a pedirlo.
		ks.unknown.SetDefault(kid, struct{}{})
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}

	// El fetch corre con su propio timeout: si el primer caller se va, el
	// resto de los que esperan no hereda la cancelación.
	ch := ks.sf.DoChan("refresh", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ks.timeout)
		defer cancel()
		return nil, ks.refresh(fctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, ctx.Err())
	}

	if v, ok := ks.keys.Get(kid); ok {
		return v.(*rsa.PublicKey), nil
	}
	ks.unknown.SetDefault(kid, struct{}{})
	return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
}

func (ks *KeySet) recentlyRefreshed() bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return !ks.lastRefresh.IsZero() && ks.now().Sub(ks.lastRefresh) < ks.minRefresh
}

func (ks *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	ks.mu.Lock()
	// If-None-Match solo si hay un snapshot con el que responder a un 304.
	if ks.etag != "" && len(ks.snapshot) > 0 {
		req.Header.Set("If-None-Match", ks.etag)
	}
	ks.mu.Unlock()

	resp, err := ks.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()

	ttl := maxAge(resp.Header.Get("Cache-Control"))

	if resp.StatusCode == http.StatusNotModified {
		ks.mu.Lock()
		snap := ks.snapshot
		ks.lastRefresh = ks.now()
		ks.mu.Unlock()
		for kid, pub := range snap {
			ks.keys.Set(kid, pub, ttl)
		}
		ks.unknown.Flush()
		return nil
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: http %d", ErrKeySetUnavailable, resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrKeySetUnavailable, err)
	}
	snap := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") || k.Kid == "" {
			continue
		}
		pub, err := rsaFromJWK(k)
		if err != nil {
			continue
		}
		snap[k.Kid] = pub
	}

	// Las claves que salieron del JWKS dejan de valer.
	ks.keys.Flush()
	for kid, pub := range snap {
		ks.keys.Set(kid, pub, ttl)
	}
	ks.unknown.Flush()

	ks.mu.Lock()
	ks.snapshot = snap
	ks.etag = resp.Header.Get("ETag")
	ks.lastRefresh = ks.now()
	ks.mu.Unlock()
	return nil
}

func rsaFromJWK(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 65537
	if len(eb) > 0 {
		e = 0
		for _, b := range eb {
			e = (e << 8) | int(b)
		}
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// maxAge extrae max-age de Cache-Control; default 1h.
func maxAge(cc string) time.Duration {
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
	}
	return defaultJWKSTTL
}

// EncodeJWK serializa una clave pública como JWK. Usado por tests y emuladores.
func EncodeJWK(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}
