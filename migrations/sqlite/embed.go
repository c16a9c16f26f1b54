// Package sqlite embebe las migraciones SQL para SQLite.
package sqlite

import "embed"

//go:embed *.sql
var FS embed.FS
