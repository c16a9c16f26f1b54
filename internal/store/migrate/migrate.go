// Package migrate aplica migraciones SQL embebidas ({version}_{name}.sql) y
// registra las aplicadas en la tabla _migrations.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Migration una migración individual.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Result resultado de Run.
type Result struct {
	Applied  []int
	Skipped  []int
	Duration time.Duration
}

// Executor abstrae el driver (pgx o database/sql).
type Executor interface {
	// EnsureTable crea _migrations si no existe.
	EnsureTable(ctx context.Context) error
	// Applied devuelve las versiones ya aplicadas.
	Applied(ctx context.Context) (map[int]bool, error)
	// Apply ejecuta m.SQL y registra la versión en una misma transacción.
	Apply(ctx context.Context, m Migration) error
}

// Locker lo implementan executors cuya base se comparte entre procesos. Run
// toma el lock antes de leer las versiones aplicadas y lo suelta al terminar.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

var filePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// Migrator lee migraciones de un fs.FS.
type Migrator struct {
	fsys fs.FS
	dir  string
}

func New(fsys fs.FS, dir string) *Migrator {
	if dir == "" {
		dir = "."
	}
	return &Migrator{fsys: fsys, dir: dir}
}

// Parse lee y ordena las migraciones por versión. Archivos que no siguen el
// patrón se ignoran; versiones duplicadas son error.
func (m *Migrator) Parse() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := filePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		version, _ := strconv.Atoi(match[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(m.fsys, path.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: match[2], SQL: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run aplica las migraciones pendientes en orden. Corta en la primera que falla.
func (m *Migrator) Run(ctx context.Context, exec Executor) (*Result, error) {
	start := time.Now()
	res := &Result{}

	if l, ok := exec.(Locker); ok {
		unlock, err := l.Lock(ctx)
		if err != nil {
			return res, fmt.Errorf("acquiring migrations lock: %w", err)
		}
		defer unlock()
	}

	if err := exec.EnsureTable(ctx); err != nil {
		return res, fmt.Errorf("creating migrations table: %w", err)
	}
	applied, err := exec.Applied(ctx)
	if err != nil {
		return res, fmt.Errorf("getting applied migrations: %w", err)
	}
	migs, err := m.Parse()
	if err != nil {
		return res, fmt.Errorf("parsing migrations: %w", err)
	}

	for _, mig := range migs {
		if applied[mig.Version] {
			res.Skipped = append(res.Skipped, mig.Version)
			continue
		}
		if err := exec.Apply(ctx, mig); err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("applying migration %d_%s: %w", mig.Version, mig.Name, err)
		}
		res.Applied = append(res.Applied, mig.Version)
	}

	res.Duration = time.Since(start)
	return res, nil
}
