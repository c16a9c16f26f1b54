// Package me expone la identidad y el perfil del usuario autenticado.
package me

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/agenda/internal/capability"
	httperrors "github.com/dropDatabas3/agenda/internal/http/errors"
	"github.com/dropDatabas3/agenda/internal/http/helpers"
	mw "github.com/dropDatabas3/agenda/internal/http/middlewares"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
)

type DatabaseProvider interface {
	Database(ctx context.Context) (capability.Database, error)
}

// Controller maneja /v1/me y /v1/me/profile. Todas las rutas requieren auth.
type Controller struct {
	db DatabaseProvider
}

func NewController(db DatabaseProvider) *Controller {
	return &Controller{db: db}
}

// Get GET /v1/me
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, mw.MustAuthContext(r.Context()))
}

// GetProfile GET /v1/me/profile. Sin perfil guardado devuelve uno derivado
// de los campos espejo.
func (c *Controller) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := mw.MustAuthContext(ctx)

	db, err := c.db.Database(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	p, err := db.GetProfile(ctx, ac.InternalUserID)
	if capability.IsCode(err, capability.CodeNotFound) {
		p, err = &capability.Profile{UserID: ac.InternalUserID, DisplayName: ac.DisplayName, AvatarURL: ac.AvatarURL}, nil
	}
	if err != nil {
		logger.From(ctx).Error("get profile failed", logger.Op("MeController.GetProfile"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, p)
}

// UpdateProfile PUT /v1/me/profile
func (c *Controller) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := mw.MustAuthContext(ctx)

	var patch capability.ProfilePatch
	if !helpers.ReadJSON(w, r, &patch) {
		return
	}
	db, err := c.db.Database(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	p, err := db.UpdateProfile(ctx, ac.InternalUserID, patch)
	if err != nil {
		logger.From(ctx).Error("update profile failed", logger.Op("MeController.UpdateProfile"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, p)
}
