// Package postgres embebe las migraciones SQL para Postgres (supabase).
package postgres

import "embed"

//go:embed *.sql
var FS embed.FS
