// Package atomicwrite escribe archivos de forma atómica: tmp en el mismo
// directorio, fsync y rename. Un lector nunca ve un archivo a medio escribir.
package atomicwrite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrExists el destino ya existe y se pidió NoClobber.
var ErrExists = errors.New("atomicwrite: destination exists")

// Options opciones de WriteReader.
type Options struct {
	Perm fs.FileMode
	// NoClobber falla con ErrExists si path ya existe. Se resuelve con un
	// hard link, así que dos escritores concurrentes no pueden ganar ambos.
	NoClobber bool
}

// WriteFile escribe data en path reemplazando el contenido previo.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	_, err := WriteReader(path, bytes.NewReader(data), Options{Perm: perm})
	return err
}

// WriteReader copia r a path y devuelve los bytes escritos.
// Pasos: tmp → copy → Sync → Close → Chmod → Rename (o Link con NoClobber).
func WriteReader(path string, r io.Reader, opts Options) (int64, error) {
	perm := opts.Perm
	if perm == 0 {
		perm = 0o644
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if opts.NoClobber {
		if _, err := os.Lstat(path); err == nil {
			return 0, ErrExists
		}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp: %w", err)
	}
	_ = os.Chmod(tmpPath, perm)

	if opts.NoClobber {
		if err := os.Link(tmpPath, path); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return 0, ErrExists
			}
			return n, fmt.Errorf("link: %w", err)
		}
		return n, nil
	}

	// En Windows rename falla si el destino está abierto; remove+rename preserva
	// el archivo viejo si el primer intento falla.
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return n, fmt.Errorf("rename: %v (after remove: %v)", err, err2)
		}
	}
	return n, nil
}
