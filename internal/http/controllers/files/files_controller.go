// Package files sirve los objetos del storage local bajo /files/{bucket}/*.
package files

import (
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/agenda/internal/http/errors"
)

// Opener lo implementa el storage en disco.
type Opener interface {
	Open(bucket, path string) (*os.File, error)
}

type Controller struct {
	store Opener
}

func NewController(store Opener) *Controller {
	return &Controller{store: store}
}

// Get GET /files/{bucket}/*
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	f, err := c.store.Open(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		httperrors.WriteError(w, httperrors.ErrNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, path.Base(st.Name()), st.ModTime(), f)
}
