// Package local implementa la capability Storage sobre el filesystem.
// Cada bucket es un subdirectorio de Root; las URLs públicas se arman con
// PublicBaseURL (lo sirve el propio servidor HTTP o un CDN delante).
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/registry"
	"github.com/dropDatabas3/agenda/internal/util/atomicwrite"
)

// Name nombre del provider en la config.
const Name = config.ProviderLocal

func init() {
	registry.RegisterStorage(Name, func(_ context.Context, cfg config.ProviderConfig) (capability.Storage, error) {
		return NewStorage(cfg.LocalStorage.Root, cfg.LocalStorage.PublicBaseURL, cfg.DefaultBucket)
	})
}

// Storage objetos como archivos bajo root/<bucket>/<path>.
type Storage struct {
	root          string
	publicBase    string
	defaultBucket string
}

func NewStorage(root, publicBaseURL, defaultBucket string) (*Storage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, capability.Wrap(capability.CodeInvalidArgument, "resolve storage root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, capability.Wrap(capability.CodeUnavailable, "create storage root", err)
	}
	if defaultBucket == "" {
		defaultBucket = capability.DefaultBucket
	}
	return &Storage{
		root:          abs,
		publicBase:    strings.TrimRight(publicBaseURL, "/"),
		defaultBucket: defaultBucket,
	}, nil
}

var _ capability.Storage = (*Storage)(nil)

func (s *Storage) Name() string { return Name }

// Root directorio absoluto donde viven los buckets.
func (s *Storage) Root() string { return s.root }

func (s *Storage) bucket(b string) (string, error) {
	if b == "" {
		b = s.defaultBucket
	}
	if strings.ContainsAny(b, `/\`) || b == "." || b == ".." {
		return "", capability.NewError(capability.CodeInvalidArgument, "invalid bucket name")
	}
	return b, nil
}

// locate valida bucket y path y devuelve la ruta en disco.
func (s *Storage) locate(bucket, path string) (string, string, string, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return "", "", "", err
	}
	p, err := capability.CleanObjectPath(path)
	if err != nil {
		return "", "", "", err
	}
	return b, p, filepath.Join(s.root, b, filepath.FromSlash(p)), nil
}

func (s *Storage) Upload(ctx context.Context, path string, body io.Reader, opts capability.UploadOptions) (*capability.StoredObject, error) {
	bucket, p, full, err := s.locate(opts.Bucket, path)
	if err != nil {
		return nil, err
	}
	n, err := atomicwrite.WriteReader(full, body, atomicwrite.Options{Perm: 0o644, NoClobber: !opts.Upsert})
	if err != nil {
		if errors.Is(err, atomicwrite.ErrExists) {
			return nil, capability.NewError(capability.CodeConflict, "object already exists")
		}
		return nil, capability.Wrap(capability.CodeInternal, "write object", err)
	}
	return &capability.StoredObject{Bucket: bucket, Path: p, PublicURL: s.publicURL(bucket, p), Size: n}, nil
}

func (s *Storage) GetPublicURL(ctx context.Context, path, bucket string) (string, error) {
	b, p, _, err := s.locate(bucket, path)
	if err != nil {
		return "", err
	}
	return s.publicURL(b, p), nil
}

func (s *Storage) publicURL(bucket, p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/" + url.PathEscape(bucket) + "/" + strings.Join(segs, "/")
}

// Delete ignora paths inexistentes, igual que Supabase Storage.
func (s *Storage) Delete(ctx context.Context, paths []string, bucket string) error {
	for _, path := range paths {
		_, _, full, err := s.locate(bucket, path)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return capability.Wrap(capability.CodeInternal, "delete object", err)
		}
	}
	return nil
}

// List devuelve los objetos cuyo path empieza con prefix, recursivo.
func (s *Storage) List(ctx context.Context, prefix, bucket string) ([]capability.ObjectInfo, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(s.root, b)
	prefix = strings.TrimPrefix(prefix, "/")

	out := []capability.ObjectInfo{}
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, capability.ObjectInfo{Name: name, Size: info.Size(), UpdatedAt: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, capability.Wrap(capability.CodeInternal, "list objects", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open abre un objeto para servirlo. Lo usa el handler de archivos estáticos.
func (s *Storage) Open(bucket, path string) (*os.File, error) {
	_, _, full, err := s.locate(bucket, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, capability.NewError(capability.CodeNotFound, "object not found")
		}
		return nil, capability.Wrap(capability.CodeInternal, "open object", err)
	}
	return f, nil
}
