package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/agenda/internal/capability"
)

const (
	eventColumns      = `id, organizer_id, title, description, location, image_url, status, starts_at, ends_at, created_at, updated_at`
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func scanEvent(row rowScanner) (*capability.Event, error) {
	var (
		e                          capability.Event
		desc, loc, img             sql.NullString
		startsAt, createdAt, updAt int64
		endsAt                     sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.OrganizerID, &e.Title, &desc, &loc, &img, &e.Status,
		&startsAt, &endsAt, &createdAt, &updAt); err != nil {
		return nil, err
	}
	e.Description, e.Location, e.ImageURL = desc.String, loc.String, img.String
	e.StartsAt = fromMillis(startsAt)
	if endsAt.Valid {
		e.EndsAt = fromMillis(endsAt.Int64)
	}
	e.CreatedAt, e.UpdatedAt = fromMillis(createdAt), fromMillis(updAt)
	return &e, nil
}

func (s *Store) GetEvents(ctx context.Context, f capability.EventFilter) ([]capability.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.OrganizerID != "" {
		where = append(where, "organizer_id = ?")
		args = append(args, f.OrganizerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		where = append(where, "starts_at >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "starts_at <= ?")
		args = append(args, toMillis(f.To))
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	q += " ORDER BY starts_at ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr("list events", err)
	}
	defer rows.Close()

	out := []capability.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, mapErr("list events", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list events", err)
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*capability.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return nil, mapErr("get event", err)
	}
	return e, nil
}

func (s *Store) CreateEvent(ctx context.Context, in capability.EventInput) (*capability.Event, error) {
	if strings.TrimSpace(in.Title) == "" || in.OrganizerID == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "title and organizer are required")
	}
	status := in.Status
	if status == "" {
		status = "pending"
	}
	now := s.now()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.OrganizerID, in.Title, nullString(in.Description), nullString(in.Location), nullString(in.ImageURL),
		status, toMillis(in.StartsAt), nullMillis(in.EndsAt), toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, mapErr("create event", err)
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) UpdateEvent(ctx context.Context, id string, p capability.EventPatch) (*capability.Event, error) {
	sets := []string{"updated_at = ?"}
	args := []any{toMillis(s.now())}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", nullString(*p.Description))
	}
	if p.Location != nil {
		add("location", nullString(*p.Location))
	}
	if p.ImageURL != nil {
		add("image_url", nullString(*p.ImageURL))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.StartsAt != nil {
		add("starts_at", toMillis(*p.StartsAt))
	}
	if p.EndsAt != nil {
		add("ends_at", nullMillis(*p.EndsAt))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, mapErr("update event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, capability.NewError(capability.CodeNotFound, "event not found")
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return capability.NewError(capability.CodeNotFound, "event not found")
	}
	return nil
}
