package memory

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/dropDatabas3/agenda/internal/capability"
)

// Handler implementación local de una función remota.
type Handler func(ctx context.Context, method string, headers map[string]string, body []byte) (*capability.InvokeResult, error)

// Functions ejecuta handlers registrados en proceso. Trae "echo" por defecto.
type Functions struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewFunctions() *Functions {
	f := &Functions{handlers: make(map[string]Handler)}
	f.Handle("echo", func(_ context.Context, _ string, headers map[string]string, body []byte) (*capability.InvokeResult, error) {
		return &capability.InvokeResult{Status: http.StatusOK, Headers: headers, Body: body}, nil
	})
	return f
}

var _ capability.Functions = (*Functions)(nil)

func (f *Functions) Name() string { return Name }

// Handle registra (o reemplaza) la función name.
func (f *Functions) Handle(name string, h Handler) {
	f.mu.Lock()
	f.handlers[name] = h
	f.mu.Unlock()
}

func (f *Functions) Invoke(ctx context.Context, name string, opts capability.InvokeOptions) (*capability.InvokeResult, error) {
	f.mu.RLock()
	h, ok := f.handlers[name]
	f.mu.RUnlock()
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "function "+name+" not found")
	}

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}
	var body []byte
	if opts.Body != nil {
		b, err := io.ReadAll(opts.Body)
		if err != nil {
			return nil, capability.Wrap(capability.CodeInvalidArgument, "read invoke body", err)
		}
		body = b
	}

	res, err := h(ctx, method, opts.Headers, body)
	if err != nil {
		return nil, capability.Normalize(err, "function "+name+" failed")
	}
	return res, nil
}
