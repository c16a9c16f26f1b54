package migrate

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// lockKey clave del advisory lock de migraciones ("agenda" en ASCII).
const lockKey int64 = 0x6167656e6461

// PgxExecutor Executor sobre un pool pgx (postgres).
type PgxExecutor struct {
	Pool *pgxpool.Pool
}

var _ Locker = PgxExecutor{}

// Lock toma un advisory lock de sesión sobre una conexión dedicada, así dos
// réplicas que arrancan juntas aplican las migraciones de a una.
func (e PgxExecutor) Lock(ctx context.Context) (func(), error) {
	conn, err := e.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		conn.Release()
		return nil, err
	}
	return func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockKey)
		conn.Release()
	}, nil
}

func (e PgxExecutor) EnsureTable(ctx context.Context) error {
	_, err := e.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version    INT PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (e PgxExecutor) Applied(ctx context.Context) (map[int]bool, error) {
	rows, err := e.Pool.Query(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (e PgxExecutor) Apply(ctx context.Context, m Migration) error {
	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO _migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
