package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/agenda/internal/capability"
)

const userColumns = `id, external_subject_id, email, display_name, avatar_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*capability.User, error) {
	var (
		u                    capability.User
		email, name, avatar  sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.ExternalSubjectID, &email, &name, &avatar, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Email, u.DisplayName, u.AvatarURL = email.String, name.String, avatar.String
	u.CreatedAt, u.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	return &u, nil
}

func (s *Store) GetUserBySubject(ctx context.Context, sub string) (*capability.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE external_subject_id = ?`, sub)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr("get user", err)
	}
	return u, nil
}

// CreateUser inserta la fila. El índice único sobre external_subject_id
// convierte la carrera entre dos requests en CodeConflict.
func (s *Store) CreateUser(ctx context.Context, in capability.NewUser) (*capability.User, error) {
	if in.ExternalSubjectID == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "external_subject_id is required")
	}
	now := s.now().Truncate(time.Millisecond)
	u := &capability.User{
		ID:                uuid.NewString(),
		ExternalSubjectID: in.ExternalSubjectID,
		Email:             in.Email,
		DisplayName:       in.DisplayName,
		AvatarURL:         in.AvatarURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ExternalSubjectID, nullString(u.Email), nullString(u.DisplayName), nullString(u.AvatarURL),
		toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, mapErr("create user", err)
	}
	return u, nil
}

func (s *Store) UpdateUserMirror(ctx context.Context, id string, m capability.Mirror) (*capability.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE app_users SET email = ?, display_name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		nullString(m.Email), nullString(m.DisplayName), nullString(m.AvatarURL), toMillis(s.now()), id,
	)
	if err != nil {
		return nil, mapErr("update user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr("update user", err)
	}
	return u, nil
}
