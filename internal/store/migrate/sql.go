package migrate

import (
	"context"
	"database/sql"
	"time"
)

// SQLExecutor Executor sobre database/sql con placeholders "?" (sqlite).
type SQLExecutor struct {
	DB *sql.DB
}

func (e SQLExecutor) EnsureTable(ctx context.Context) error {
	_, err := e.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	return err
}

func (e SQLExecutor) Applied(ctx context.Context) (map[int]bool, error) {
	rows, err := e.DB.QueryContext(ctx, `SELECT version FROM _migrations`)
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

func (e SQLExecutor) Apply(ctx context.Context, m Migration) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
