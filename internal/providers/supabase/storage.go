package supabase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
	"github.com/dropDatabas3/agenda/internal/config"
	"github.com/dropDatabas3/agenda/internal/providers/rest"
)

const listPageSize = 1000

// Storage capability sobre Supabase Storage (/storage/v1).
type Storage struct {
	client        *rest.Client
	defaultBucket string
}

func NewStorage(cfg config.SupabaseConfig, defaultBucket string, timeout time.Duration) (*Storage, error) {
	c, err := serviceClient(cfg, timeout)
	if err != nil {
		return nil, err
	}
	if defaultBucket == "" {
		defaultBucket = capability.DefaultBucket
	}
	return &Storage{client: c, defaultBucket: defaultBucket}, nil
}

var _ capability.Storage = (*Storage)(nil)

func (s *Storage) Name() string { return Name }

func (s *Storage) bucket(b string) string {
	if b == "" {
		return s.defaultBucket
	}
	return b
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *Storage) Upload(ctx context.Context, path string, body io.Reader, opts capability.UploadOptions) (*capability.StoredObject, error) {
	path, err := capability.CleanObjectPath(path)
	if err != nil {
		return nil, err
	}
	bucket := s.bucket(opts.Bucket)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{"x-upsert": "false"}
	if opts.Upsert {
		headers["x-upsert"] = "true"
	}

	cr := &countingReader{r: body}
	err = s.client.Do(ctx, rest.Request{
		Method:      http.MethodPost,
		Path:        "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapePath(path),
		RawBody:     cr,
		ContentType: contentType,
		Headers:     headers,
	}, nil)
	if err != nil {
		return nil, uploadErr(err)
	}
	return &capability.StoredObject{
		Bucket:    bucket,
		Path:      path,
		PublicURL: s.publicURL(bucket, path),
		Size:      cr.n,
	}, nil
}

// Storage devuelve 400 {"error":"Duplicate"} cuando el objeto existe y no hay upsert.
func uploadErr(err error) error {
	var ce *capability.Error
	if capability.IsCode(err, capability.CodeInvalidArgument) && errors.As(err, &ce) {
		msg := strings.ToLower(ce.Message)
		if strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists") {
			return capability.NewError(capability.CodeConflict, "object already exists")
		}
	}
	return err
}

func (s *Storage) GetPublicURL(ctx context.Context, path, bucket string) (string, error) {
	path, err := capability.CleanObjectPath(path)
	if err != nil {
		return "", err
	}
	return s.publicURL(s.bucket(bucket), path), nil
}

func (s *Storage) publicURL(bucket, path string) string {
	return s.client.BaseURL() + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

func (s *Storage) Delete(ctx context.Context, paths []string, bucket string) error {
	if len(paths) == 0 {
		return nil
	}
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		c, err := capability.CleanObjectPath(p)
		if err != nil {
			return err
		}
		clean = append(clean, c)
	}
	return s.client.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   "/storage/v1/object/" + url.PathEscape(s.bucket(bucket)),
		Body:   map[string][]string{"prefixes": clean},
	}, nil)
}

type listEntry struct {
	Name      string     `json:"name"`
	UpdatedAt *time.Time `json:"updated_at"`
	Metadata  *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

// List lista los objetos bajo prefix (un nivel, como la API de Storage).
func (s *Storage) List(ctx context.Context, prefix, bucket string) ([]capability.ObjectInfo, error) {
	var entries []listEntry
	err := s.client.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/storage/v1/object/list/" + url.PathEscape(s.bucket(bucket)),
		Body: map[string]any{
			"prefix": strings.TrimPrefix(prefix, "/"),
			"limit":  listPageSize,
			"offset": 0,
			"sortBy": map[string]string{"column": "name", "order": "asc"},
		},
	}, &entries)
	if err != nil {
		return nil, err
	}

	out := make([]capability.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		info := capability.ObjectInfo{Name: e.Name}
		if e.UpdatedAt != nil {
			info.UpdatedAt = e.UpdatedAt.UTC()
		}
		if e.Metadata != nil {
			info.Size = e.Metadata.Size
		}
		out = append(out, info)
	}
	return out, nil
}
