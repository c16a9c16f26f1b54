// Package events expone la agenda de eventos sobre las capabilities
// Database y Storage.
package events

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/agenda/internal/capability"
	httperrors "github.com/dropDatabas3/agenda/internal/http/errors"
	"github.com/dropDatabas3/agenda/internal/http/helpers"
	mw "github.com/dropDatabas3/agenda/internal/http/middlewares"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
)

// MaxImageBytes tamaño máximo de una imagen de evento.
const MaxImageBytes = 5 << 20

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Providers capabilities que usa el controller.
type Providers interface {
	Database(ctx context.Context) (capability.Database, error)
	Storage(ctx context.Context) (capability.Storage, error)
}

type Controller struct {
	providers Providers
}

func NewController(p Providers) *Controller {
	return &Controller{providers: p}
}

// List GET /v1/events?status=&from=&to=&limit=&offset=&mine=1
// mine=1 exige sesión; el resto es público.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var f capability.EventFilter
	f.Status = q.Get("status")
	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("invalid 'from', expected RFC3339"))
		return
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("invalid 'to', expected RFC3339"))
		return
	}
	if f.Limit, err = parseInt(q.Get("limit")); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("invalid 'limit'"))
		return
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("invalid 'offset'"))
		return
	}
	if q.Get("mine") == "1" || q.Get("mine") == "true" {
		ac, ok := mw.GetAuthContext(ctx)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="agenda"`)
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
			return
		}
		f.OrganizerID = ac.InternalUserID
	}

	db, err := c.providers.Database(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	list, err := db.GetEvents(ctx, f)
	if err != nil {
		logger.From(ctx).Error("list events failed", logger.Op("EventsController.List"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"events": list})
}

// Get GET /v1/events/{id}
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	db, err := c.providers.Database(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	e, err := db.GetEvent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, e)
}

// Create POST /v1/events. El organizador es siempre el usuario autenticado.
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := mw.MustAuthContext(ctx)

	var in capability.EventInput
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" || in.StartsAt.IsZero() {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("title and starts_at are required"))
		return
	}
	if !in.EndsAt.IsZero() && in.EndsAt.Before(in.StartsAt) {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("ends_at must not be before starts_at"))
		return
	}
	in.OrganizerID = ac.InternalUserID

	db, err := c.providers.Database(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	e, err := db.CreateEvent(ctx, in)
	if err != nil {
		logger.From(ctx).Error("create event failed", logger.Op("EventsController.Create"), logger.UserID(ac.InternalUserID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/events/"+e.ID)
	helpers.WriteJSON(w, http.StatusCreated, e)
}

// UploadImage POST /v1/events/{id}/image. Body = bytes de la imagen; sólo el
// organizador puede subirla.
func (c *Controller) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := mw.MustAuthContext(ctx)
	log := logger.From(ctx).With(logger.Op("EventsController.UploadImage"), logger.UserID(ac.InternalUserID))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	ext, ok := imageExt[mediaType]
	if !ok {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("unsupported image type"))
		return
	}

	db, err := c.providers.Database(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	e, err := db.GetEvent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if e.OrganizerID != ac.InternalUserID {
		httperrors.WriteError(w, httperrors.ErrForbidden)
		return
	}

	store, err := c.providers.Storage(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxImageBytes+1))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("could not read body"))
		return
	}
	if len(data) > MaxImageBytes {
		httperrors.WriteError(w, httperrors.ErrPayloadTooLarge)
		return
	}
	if len(data) == 0 {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithMessage("empty image"))
		return
	}

	path := "events/" + e.ID + "/" + uuid.NewString() + ext
	obj, err := store.Upload(ctx, path, bytes.NewReader(data), capability.UploadOptions{ContentType: mediaType})
	if err != nil {
		log.Error("image upload failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	log.Info("event image uploaded", logger.String("path", obj.Path), logger.Int("bytes", len(data)))

	url := obj.PublicURL
	updated, err := db.UpdateEvent(ctx, e.ID, capability.EventPatch{ImageURL: &url})
	if err != nil {
		log.Error("attach image failed", logger.Err(err))
		// sin evento que la referencie la imagen queda huérfana
		if derr := store.Delete(context.WithoutCancel(ctx), []string{obj.Path}, obj.Bucket); derr != nil {
			log.Warn("orphan image cleanup failed", logger.String("path", obj.Path), logger.Err(derr))
		}
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, updated)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err == nil && n < 0 {
		return 0, strconv.ErrRange
	}
	return n, err
}
