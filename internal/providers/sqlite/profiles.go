package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dropDatabas3/agenda/internal/capability"
)

func (s *Store) GetProfile(ctx context.Context, userID string) (*capability.Profile, error) {
	var (
		p                         capability.Profile
		name, bio, avatar, locale sql.NullString
		updatedAt                 int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, bio, avatar_url, locale, updated_at FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &name, &bio, &avatar, &locale, &updatedAt)
	if err != nil {
		return nil, mapErr("get profile", err)
	}
	p.DisplayName, p.Bio, p.AvatarURL, p.Locale = name.String, bio.String, avatar.String, locale.String
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// UpdateProfile aplica el patch creando la fila si no existe.
// Un userID inexistente devuelve not_found.
func (s *Store) UpdateProfile(ctx context.Context, userID string, patch capability.ProfilePatch) (*capability.Profile, error) {
	current, err := s.GetProfile(ctx, userID)
	if err != nil {
		if !capability.IsCode(err, capability.CodeNotFound) {
			return nil, err
		}
		if err := s.userExists(ctx, userID); err != nil {
			return nil, err
		}
		current = &capability.Profile{UserID: userID}
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&current.DisplayName, patch.DisplayName)
	apply(&current.Bio, patch.Bio)
	apply(&current.AvatarURL, patch.AvatarURL)
	apply(&current.Locale, patch.Locale)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, bio, avatar_url, locale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			bio          = excluded.bio,
			avatar_url   = excluded.avatar_url,
			locale       = excluded.locale,
			updated_at   = excluded.updated_at`,
		userID, nullString(current.DisplayName), nullString(current.Bio),
		nullString(current.AvatarURL), nullString(current.Locale), toMillis(s.now()),
	)
	if err != nil {
		return nil, mapErr("update profile", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Store) userExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM app_users WHERE id = ?`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return capability.NewError(capability.CodeNotFound, "user not found")
		}
		return mapErr("get user", err)
	}
	return nil
}

// ─── Genéricos: no soportados en sqlite ───

func (s *Store) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, notSupported("query")
}

func (s *Store) Insert(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, notSupported("insert")
}

func (s *Store) Update(context.Context, string, map[string]any, map[string]any) (int64, error) {
	return 0, notSupported("update")
}

func (s *Store) Delete(context.Context, string, map[string]any) (int64, error) {
	return 0, notSupported("delete")
}
