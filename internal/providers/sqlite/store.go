package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/store/migrate"
	sqlitemigrations "github.com/dropDatabas3/agenda/migrations/sqlite"
)

const memoryPath = ":memory:"

// Store Database sobre un archivo SQLite. Las migraciones se aplican en Open.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ capability.Database = (*Store)(nil)
	_ capability.Pinger   = (*Store)(nil)
)

// Open abre (o crea) la base en path y aplica las migraciones pendientes.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "sqlite path is required")
	}
	dsn := memoryPath
	if path != memoryPath {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, capability.Wrap(capability.CodeUnavailable, "open sqlite", err)
	}
	if path == memoryPath {
		// cada conexión a :memory: es una base distinta
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, capability.Wrap(capability.CodeUnavailable, "ping sqlite", err)
	}

	if _, err := migrate.New(sqlitemigrations.FS, ".").Run(ctx, migrate.SQLExecutor{DB: db}); err != nil {
		_ = db.Close()
		return nil, capability.Wrap(capability.CodeInternal, "run sqlite migrations", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Name() string { return Name }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return capability.Wrap(capability.CodeUnavailable, "ping sqlite", err)
	}
	return nil
}

// Close cierra la base. Lo llama registry.Reset/Close.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// mapErr normaliza errores del driver a capability.Error.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return capability.NewError(capability.CodeNotFound, op+": not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return capability.Wrap(capability.CodeUnavailable, op, err)
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return capability.Wrap(capability.CodeConflict, op+": duplicate key", err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return capability.Wrap(capability.CodeInvalidArgument, op, err)
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return capability.Wrap(capability.CodeUnavailable, op, err)
		}
	}
	return capability.Wrap(capability.CodeInternal, op, err)
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

func notSupported(op string) error {
	return capability.NotSupported(fmt.Sprintf("generic %s", op), Name)
}
