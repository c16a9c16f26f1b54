package supabase

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/providers/rest"
)

// Functions invoca Edge Functions (/functions/v1/{name}).
type Functions struct {
	client *rest.Client
}

func NewFunctions(cfg config.SupabaseConfig, timeout time.Duration) (*Functions, error) {
	c, err := serviceClient(cfg, timeout)
	if err != nil {
		return nil, err
	}
	return &Functions{client: c}, nil
}

var _ capability.Functions = (*Functions)(nil)

func (f *Functions) Name() string { return Name }

func (f *Functions) Invoke(ctx context.Context, name string, opts capability.InvokeOptions) (*capability.InvokeResult, error) {
	if name == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "function name is required")
	}
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if opts.Body != nil {
		body = opts.Body
	} else if method != http.MethodGet {
		body = bytes.NewReader(nil)
	}

	resp, err := f.client.Raw(ctx, rest.Request{
		Method:      method,
		Path:        "/functions/v1/" + url.PathEscape(name),
		RawBody:     body,
		ContentType: opts.Headers["Content-Type"],
		Headers:     opts.Headers,
	})
	if err != nil {
		return nil, err
	}
	if err := invokeErr(name, resp); err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &capability.InvokeResult{Status: resp.Status, Headers: headers, Body: resp.Body}, nil
}

// invokeErr: 404 not_found, otros 4xx invalid_argument, 5xx unavailable.
func invokeErr(name string, resp *rest.Response) error {
	status := resp.Status
	if status >= 200 && status < 300 {
		return nil
	}
	code := capability.CodeInvalidArgument
	switch {
	case status == http.StatusNotFound:
		code = capability.CodeNotFound
	case status >= 500:
		code = capability.CodeUnavailable
	case status < 400:
		code = capability.CodeInternal
	}
	msg := rest.Message(resp.Body)
	if msg == "" {
		msg = "function " + name + " returned " + http.StatusText(status)
	}
	return &capability.Error{Code: code, Message: msg, Details: "status " + http.StatusText(status)}
}
