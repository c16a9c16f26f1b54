// Package rest es el cliente HTTP JSON compartido por los providers remotos
// (supabase, firebase). Traduce fallos de transporte y status HTTP a
// capability.Error.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
)

const maxBodyBytes = 10 << 20

// Client cliente JSON atado a una URL base.
type Client struct {
	base    string
	http    *http.Client
	headers map[string]string
}

// New crea un cliente. headers se envían en cada request (p. ej. apikey).
func New(baseURL string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// WithHTTPClient reemplaza el http.Client (tests, transports con auth).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.http = hc
	return &cp
}

// BaseURL URL base sin barra final.
func (c *Client) BaseURL() string { return c.base }

// Request describe una llamada. Si Body no es nil se serializa como JSON;
// RawBody tiene prioridad y se envía tal cual con ContentType.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        any
	RawBody     io.Reader
	ContentType string
	Bearer      string
	Headers     map[string]string
}

// Response respuesta cruda.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Raw ejecuta la request y devuelve la respuesta sin interpretar el status.
// Sólo falla por errores de transporte (CodeUnavailable).
func (c *Client) Raw(ctx context.Context, r Request) (*Response, error) {
	var body io.Reader
	contentType := r.ContentType
	switch {
	case r.RawBody != nil:
		body = r.RawBody
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, capability.Wrap(capability.CodeInvalidArgument, "encode request body", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	u := c.base + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, capability.Wrap(capability.CodeInvalidArgument, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, capability.Wrap(capability.CodeUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, capability.Wrap(capability.CodeUnavailable, "read response", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Do ejecuta la request, convierte status no-2xx en *capability.Error y
// decodifica el cuerpo en out (si out no es nil y hay cuerpo).
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	resp, err := c.Raw(ctx, r)
	if err != nil {
		return err
	}
	if err := StatusError(resp.Status, resp.Body); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return capability.Wrap(capability.CodeInternal, "decode response", err)
	}
	return nil
}

// StatusError devuelve nil para 2xx; en otro caso un error con el código
// correspondiente y el mensaje que el backend haya incluido.
func StatusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := Message(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &capability.Error{
		Code:    CodeForStatus(status),
		Message: msg,
		Details: fmt.Sprintf("status %d", status),
	}
}

// CodeForStatus mapea un status HTTP a un código de capability.
func CodeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return capability.CodeNotFound
	case status == http.StatusConflict:
		return capability.CodeConflict
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return capability.CodeUnauthenticated
	case status == http.StatusTooManyRequests, status >= 500:
		return capability.CodeUnavailable
	case status >= 400:
		return capability.CodeInvalidArgument
	default:
		return capability.CodeInternal
	}
}

// Message extrae el mensaje de error de los formatos conocidos:
// GoTrue {"msg"} / {"error_description"}, Storage {"message"},
// Google {"error":{"message"}}.
func Message(body []byte) string {
	var m map[string]json.RawMessage
	if json.Unmarshal(body, &m) != nil {
		return ""
	}
	for _, k := range []string{"error_description", "msg", "message"} {
		var s string
		if raw, ok := m[k]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	raw, ok := m["error"]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &nested) == nil {
		return nested.Message
	}
	return ""
}

// IsTransport reporta si err vino de la capa de transporte (sin respuesta).
func IsTransport(err error) bool {
	var ce *capability.Error
	return errors.As(err, &ce) && ce.Code == capability.CodeUnavailable && ce.Message == "request failed"
}
