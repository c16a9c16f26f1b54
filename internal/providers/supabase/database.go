package supabase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/observability/logger"
	"github.com/dropDatabas3/agenda/internal/store/migrate"
	pgmigrations "github.com/dropDatabas3/agenda/migrations/postgres"
)

const (
	defaultMaxConns   = 10
	defaultEventLimit = 50
	maxEventLimit     = 500
	genericRowLimit   = 500
)

// genericTables tablas expuestas por los escape hatches Query/Insert/Update/Delete.
// app_users queda afuera: sólo la toca el resolver de identidad.
var genericTables = map[string]bool{
	"events":   true,
	"profiles": true,
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Database capability sobre el Postgres del proyecto Supabase.
type Database struct {
	pool *pgxpool.Pool
}

var (
	_ capability.Database = (*Database)(nil)
	_ capability.Pinger   = (*Database)(nil)
)

// OpenDatabase crea el pool y aplica las migraciones pendientes.
func OpenDatabase(ctx context.Context, cfg config.SupabaseConfig) (*Database, error) {
	if cfg.DBDSN == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "supabase db_dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DBDSN)
	if err != nil {
		return nil, capability.Wrap(capability.CodeInvalidArgument, "parse db_dsn", err)
	}
	switch {
	case cfg.MaxConns > 0:
		pcfg.MaxConns = int32(cfg.MaxConns)
	case pcfg.MaxConns == 0:
		pcfg.MaxConns = defaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, capability.Wrap(capability.CodeUnavailable, "create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, capability.Wrap(capability.CodeUnavailable, "ping postgres", err)
	}

	res, err := migrate.New(pgmigrations.FS, ".").Run(ctx, migrate.PgxExecutor{Pool: pool})
	if err != nil {
		pool.Close()
		return nil, capability.Wrap(capability.CodeInternal, "run postgres migrations", err)
	}

	logger.From(ctx).Debug("supabase database ready",
		logger.Component("providers.supabase"),
		logger.String("db_target", fmt.Sprintf("%s@%s:%d/%s", pcfg.ConnConfig.User, pcfg.ConnConfig.Host, pcfg.ConnConfig.Port, pcfg.ConnConfig.Database)),
		logger.Int("migrations_applied", len(res.Applied)),
	)
	return &Database{pool: pool}, nil
}

// NewDatabase envuelve un pool existente sin migrar.
func NewDatabase(pool *pgxpool.Pool) *Database { return &Database{pool: pool} }

func (d *Database) Name() string { return Name }

func (d *Database) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return capability.Wrap(capability.CodeUnavailable, "ping postgres", err)
	}
	return nil
}

func (d *Database) Close() error {
	d.pool.Close()
	return nil
}

// mapPgErr normaliza errores de pgx.
func mapPgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return capability.NewError(capability.CodeNotFound, op+": not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return capability.Wrap(capability.CodeUnavailable, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return capability.Wrap(capability.CodeConflict, op+": duplicate key", err)
		case "23503", "23502", "23514", "22P02", "42703": // fk, not null, check, invalid text, undefined column
			return capability.Wrap(capability.CodeInvalidArgument, op, err)
		case "57P01", "57P03", "53300": // admin shutdown, cannot connect now, too many connections
			return capability.Wrap(capability.CodeUnavailable, op, err)
		}
		return capability.Wrap(capability.CodeInternal, op, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return capability.Wrap(capability.CodeUnavailable, op, err)
	}
	return capability.Wrap(capability.CodeInternal, op, err)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ─── Users ───

const userColumns = `id::text, external_subject_id, email, display_name, avatar_url, created_at, updated_at`

func scanUser(row pgx.Row) (*capability.User, error) {
	var (
		u                   capability.User
		email, name, avatar *string
	)
	if err := row.Scan(&u.ID, &u.ExternalSubjectID, &email, &name, &avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Email, u.DisplayName, u.AvatarURL = deref(email), deref(name), deref(avatar)
	return &u, nil
}

func (d *Database) GetUserBySubject(ctx context.Context, sub string) (*capability.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_users WHERE external_subject_id = $1`, sub))
	if err != nil {
		return nil, mapPgErr("get user", err)
	}
	return u, nil
}

func (d *Database) CreateUser(ctx context.Context, in capability.NewUser) (*capability.User, error) {
	if in.ExternalSubjectID == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "external_subject_id is required")
	}
	u, err := scanUser(d.pool.QueryRow(ctx, `
		INSERT INTO app_users (external_subject_id, email, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		in.ExternalSubjectID, nullable(in.Email), nullable(in.DisplayName), nullable(in.AvatarURL),
	))
	if err != nil {
		return nil, mapPgErr("create user", err)
	}
	return u, nil
}

func (d *Database) UpdateUserMirror(ctx context.Context, id string, m capability.Mirror) (*capability.User, error) {
	if !validID(id) {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	u, err := scanUser(d.pool.QueryRow(ctx, `
		UPDATE app_users SET email = $2, display_name = $3, avatar_url = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, nullable(m.Email), nullable(m.DisplayName), nullable(m.AvatarURL),
	))
	if err != nil {
		return nil, mapPgErr("update user", err)
	}
	return u, nil
}

// ─── Events ───

const eventColumns = `id::text, organizer_id::text, title, description, location, image_url, status, starts_at, ends_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*capability.Event, error) {
	var (
		e              capability.Event
		desc, loc, img *string
		endsAt         *time.Time
	)
	if err := row.Scan(&e.ID, &e.OrganizerID, &e.Title, &desc, &loc, &img, &e.Status,
		&e.StartsAt, &endsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Description, e.Location, e.ImageURL = deref(desc), deref(loc), deref(img)
	if endsAt != nil {
		e.EndsAt = *endsAt
	}
	return &e, nil
}

func (d *Database) GetEvents(ctx context.Context, f capability.EventFilter) ([]capability.Event, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.OrganizerID != "" {
		if !validID(f.OrganizerID) {
			return []capability.Event{}, nil
		}
		where = append(where, "organizer_id = "+arg(f.OrganizerID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "starts_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "starts_at <= "+arg(f.To))
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	limit = min(limit, maxEventLimit)
	q += " ORDER BY starts_at ASC, id ASC LIMIT " + arg(limit) + " OFFSET " + arg(max(f.Offset, 0))

	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgErr("list events", err)
	}
	defer rows.Close()

	out := []capability.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, mapPgErr("list events", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr("list events", err)
	}
	return out, nil
}

func (d *Database) GetEvent(ctx context.Context, id string) (*capability.Event, error) {
	if !validID(id) {
		return nil, capability.NewError(capability.CodeNotFound, "event not found")
	}
	e, err := scanEvent(d.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgErr("get event", err)
	}
	return e, nil
}

func (d *Database) CreateEvent(ctx context.Context, in capability.EventInput) (*capability.Event, error) {
	if strings.TrimSpace(in.Title) == "" || !validID(in.OrganizerID) {
		return nil, capability.NewError(capability.CodeInvalidArgument, "title and organizer are required")
	}
	status := in.Status
	if status == "" {
		status = "pending"
	}
	e, err := scanEvent(d.pool.QueryRow(ctx, `
		INSERT INTO events (organizer_id, title, description, location, image_url, status, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+eventColumns,
		in.OrganizerID, in.Title, nullable(in.Description), nullable(in.Location), nullable(in.ImageURL),
		status, in.StartsAt, nullableTime(in.EndsAt),
	))
	if err != nil {
		return nil, mapPgErr("create event", err)
	}
	return e, nil
}

func (d *Database) UpdateEvent(ctx context.Context, id string, p capability.EventPatch) (*capability.Event, error) {
	if !validID(id) {
		return nil, capability.NewError(capability.CodeNotFound, "event not found")
	}
	args := []any{id}
	sets := []string{"updated_at = NOW()"}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", nullable(*p.Description))
	}
	if p.Location != nil {
		add("location", nullable(*p.Location))
	}
	if p.ImageURL != nil {
		add("image_url", nullable(*p.ImageURL))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.StartsAt != nil {
		add("starts_at", *p.StartsAt)
	}
	if p.EndsAt != nil {
		add("ends_at", nullableTime(*p.EndsAt))
	}

	e, err := scanEvent(d.pool.QueryRow(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+eventColumns, args...))
	if err != nil {
		return nil, mapPgErr("update event", err)
	}
	return e, nil
}

func (d *Database) DeleteEvent(ctx context.Context, id string) error {
	if !validID(id) {
		return capability.NewError(capability.CodeNotFound, "event not found")
	}
	tag, err := d.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return mapPgErr("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return capability.NewError(capability.CodeNotFound, "event not found")
	}
	return nil
}

// ─── Profiles ───

func (d *Database) GetProfile(ctx context.Context, userID string) (*capability.Profile, error) {
	if !validID(userID) {
		return nil, capability.NewError(capability.CodeNotFound, "profile not found")
	}
	var (
		p                         capability.Profile
		name, bio, avatar, locale *string
	)
	err := d.pool.QueryRow(ctx,
		`SELECT user_id::text, display_name, bio, avatar_url, locale, updated_at FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &name, &bio, &avatar, &locale, &p.UpdatedAt)
	if err != nil {
		return nil, mapPgErr("get profile", err)
	}
	p.DisplayName, p.Bio, p.AvatarURL, p.Locale = deref(name), deref(bio), deref(avatar), deref(locale)
	return &p, nil
}

// UpdateProfile hace upsert; los campos nil del patch conservan el valor actual.
func (d *Database) UpdateProfile(ctx context.Context, userID string, patch capability.ProfilePatch) (*capability.Profile, error) {
	if !validID(userID) {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name, bio, avatar_url, locale)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = CASE WHEN $6 THEN EXCLUDED.display_name ELSE profiles.display_name END,
			bio          = CASE WHEN $7 THEN EXCLUDED.bio ELSE profiles.bio END,
			avatar_url   = CASE WHEN $8 THEN EXCLUDED.avatar_url ELSE profiles.avatar_url END,
			locale       = CASE WHEN $9 THEN EXCLUDED.locale ELSE profiles.locale END,
			updated_at   = NOW()`,
		userID, nullPtr(patch.DisplayName), nullPtr(patch.Bio), nullPtr(patch.AvatarURL), nullPtr(patch.Locale),
		patch.DisplayName != nil, patch.Bio != nil, patch.AvatarURL != nil, patch.Locale != nil,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, capability.NewError(capability.CodeNotFound, "user not found")
		}
		return nil, mapPgErr("update profile", err)
	}
	return d.GetProfile(ctx, userID)
}

func nullPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return nullable(*s)
}

// ─── Genéricos ───

func checkTable(table string) (string, error) {
	if !genericTables[table] {
		return "", capability.NewError(capability.CodeInvalidArgument, fmt.Sprintf("table %q is not accessible", table))
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

// sortedColumns valida y ordena las claves para que el SQL sea determinista.
func sortedColumns(m map[string]any) ([]string, error) {
	cols := make([]string, 0, len(m))
	for k := range m {
		if !identRe.MatchString(k) {
			return nil, capability.NewError(capability.CodeInvalidArgument, fmt.Sprintf("invalid column %q", k))
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

// whereClause arma "col = $n AND ..." empezando en $start+1.
func whereClause(filter map[string]any, start int) (string, []any, error) {
	cols, err := sortedColumns(filter)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), start+i+1)
		args[i] = filter[c]
	}
	return strings.Join(parts, " AND "), args, nil
}

func (d *Database) Query(ctx context.Context, table string, filter map[string]any) ([]map[string]any, error) {
	t, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	q := "SELECT * FROM " + t
	where, args, err := whereClause(filter, 0)
	if err != nil {
		return nil, err
	}
	if where != "" {
		q += " WHERE " + where
	}
	q += fmt.Sprintf(" LIMIT %d", genericRowLimit)

	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgErr("query "+table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapPgErr("query "+table, err)
	}
	return out, nil
}

func (d *Database) Insert(ctx context.Context, table string, row map[string]any) (map[string]any, error) {
	t, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	cols, err := sortedColumns(row)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, capability.NewError(capability.CodeInvalidArgument, "empty row")
	}
	names := make([]string, len(cols))
	ph := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = pgx.Identifier{c}.Sanitize()
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *", t, strings.Join(names, ", "), strings.Join(ph, ", "))

	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgErr("insert "+table, err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapPgErr("insert "+table, err)
	}
	return out, nil
}

func (d *Database) Update(ctx context.Context, table string, filter, patch map[string]any) (int64, error) {
	t, err := checkTable(table)
	if err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, capability.NewError(capability.CodeInvalidArgument, "update requires a filter")
	}
	cols, err := sortedColumns(patch)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, capability.NewError(capability.CodeInvalidArgument, "empty patch")
	}
	sets := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
		args[i] = patch[c]
	}
	where, wargs, err := whereClause(filter, len(args))
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t, strings.Join(sets, ", "), where)

	tag, err := d.pool.Exec(ctx, q, append(args, wargs...)...)
	if err != nil {
		return 0, mapPgErr("update "+table, err)
	}
	return tag.RowsAffected(), nil
}

func (d *Database) Delete(ctx context.Context, table string, filter map[string]any) (int64, error) {
	t, err := checkTable(table)
	if err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, capability.NewError(capability.CodeInvalidArgument, "delete requires a filter")
	}
	where, args, err := whereClause(filter, 0)
	if err != nil {
		return 0, err
	}
	tag, err := d.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", t, where), args...)
	if err != nil {
		return 0, mapPgErr("delete "+table, err)
	}
	return tag.RowsAffected(), nil
}
