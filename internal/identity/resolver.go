package identity

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/metrics"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
	"github.com/dropDatabas3/agenda/internal/observability/tracing"
)

// DatabaseProvider fuente de la capability de base de datos (normalmente *registry.Registry).
type DatabaseProvider interface {
	Database(ctx context.Context) (capability.Database, error)
}

// Resolution resultado de Resolve.
type Resolution struct {
	User capability.User
	// Created true si este llamado insertó la fila.
	Created bool
	// Stale true si los campos espejo difieren del token porque el update falló.
	Stale bool
}

// Resolver mapea external_subject_id → User.ID, exactamente una fila por sujeto.
//
// No usa locks de aplicación: la unicidad la impone el store. Si dos logins
// concurrentes intentan insertar, el perdedor recibe CodeConflict y relee la
// fila del ganador.
type Resolver struct {
	db DatabaseProvider
}

func NewResolver(db DatabaseProvider) *Resolver {
	return &Resolver{db: db}
}

// Resolve hace get-or-create del User para id. Solo devuelve errores que
// envuelven ErrIdentityResolutionFailed. No reintenta internamente.
func (r *Resolver) Resolve(ctx context.Context, id capability.ExternalIdentity) (*Resolution, error) {
	ctx, span := tracing.Start(ctx, "identity.resolve")
	defer span.End()

	res, outcome, err := r.resolve(ctx, id)
	metrics.IdentityResolutions.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("identity.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, "resolution failed")
		logger.From(ctx).Error("identity resolution failed", logger.Subject(id.SubjectID), logger.Err(err))
		return nil, err
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, id capability.ExternalIdentity) (*Resolution, string, error) {
	if id.SubjectID == "" {
		return nil, "failed", fmt.Errorf("%w: empty subject id", ErrIdentityResolutionFailed)
	}

	db, err := r.db.Database(ctx)
	if err != nil {
		return nil, "failed", fmt.Errorf("%w: %w", ErrIdentityResolutionFailed, err)
	}

	// 1. lookup
	u, err := db.GetUserBySubject(ctx, id.SubjectID)
	switch {
	case err == nil:
		return r.refresh(ctx, db, u, id)
	case !capability.IsCode(err, capability.CodeNotFound):
		return nil, "failed", fmt.Errorf("%w: lookup: %w", ErrIdentityResolutionFailed, err)
	}

	// 2. insert
	m := capability.MirrorOf(id)
	u, err = db.CreateUser(ctx, capability.NewUser{
		ExternalSubjectID: id.SubjectID,
		Email:             m.Email,
		DisplayName:       m.DisplayName,
		AvatarURL:         m.AvatarURL,
	})
	if err == nil {
		logger.From(ctx).Info("user created", logger.Subject(id.SubjectID), logger.UserID(u.ID))
		return &Resolution{User: *u, Created: true}, "created", nil
	}
	if !capability.IsCode(err, capability.CodeConflict) {
		return nil, "failed", fmt.Errorf("%w: insert: %w", ErrIdentityResolutionFailed, err)
	}

	// 3. otro request ganó la carrera: releer su fila
	u, err = db.GetUserBySubject(ctx, id.SubjectID)
	if err != nil {
		return nil, "failed", fmt.Errorf("%w: re-fetch after conflict: %w", ErrIdentityResolutionFailed, err)
	}
	logger.From(ctx).Debug("user insert lost race, using existing row",
		logger.Subject(id.SubjectID), logger.UserID(u.ID))
	return &Resolution{User: *u}, "race_recovered", nil
}

// refresh actualiza los campos espejo si difieren. Un fallo acá no falla la
// resolución: se devuelve la fila previa marcada como stale.
func (r *Resolver) refresh(ctx context.Context, db capability.Database, u *capability.User, id capability.ExternalIdentity) (*Resolution, string, error) {
	want := capability.MirrorOf(id)
	if want == capability.MirrorOfUser(*u) {
		return &Resolution{User: *u}, "existing", nil
	}

	updated, err := db.UpdateUserMirror(ctx, u.ID, want)
	if err != nil {
		logger.From(ctx).Warn("profile mirror refresh failed, returning stored row",
			logger.Subject(id.SubjectID), logger.UserID(u.ID), logger.Err(err))
		return &Resolution{User: *u, Stale: true}, "mirror_failed", nil
	}
	return &Resolution{User: *updated}, "refreshed", nil
}
