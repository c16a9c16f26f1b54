package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/agenda/internal/capability"
)

type object struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

// Storage almacenamiento de objetos en memoria, por bucket.
type Storage struct {
	defaultBucket string

	mu      sync.RWMutex
	buckets map[string]map[string]*object
}

func NewStorage(defaultBucket string) *Storage {
	if defaultBucket == "" {
		defaultBucket = capability.DefaultBucket
	}
	return &Storage{defaultBucket: defaultBucket, buckets: make(map[string]map[string]*object)}
}

var _ capability.Storage = (*Storage)(nil)

func (s *Storage) Name() string { return Name }

func (s *Storage) bucket(b string) string {
	if b == "" {
		return s.defaultBucket
	}
	return b
}

func (s *Storage) Upload(ctx context.Context, path string, body io.Reader, opts capability.UploadOptions) (*capability.StoredObject, error) {
	path, err := capability.CleanObjectPath(path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, capability.Wrap(capability.CodeInvalidArgument, "read upload body", err)
	}
	bucket := s.bucket(opts.Bucket)

	s.mu.Lock()
	objs, ok := s.buckets[bucket]
	if !ok {
		objs = make(map[string]*object)
		s.buckets[bucket] = objs
	}
	if _, exists := objs[path]; exists && !opts.Upsert {
		s.mu.Unlock()
		return nil, capability.NewError(capability.CodeConflict, "object already exists")
	}
	objs[path] = &object{data: data, contentType: opts.ContentType, updatedAt: time.Now().UTC()}
	s.mu.Unlock()

	return &capability.StoredObject{Bucket: bucket, Path: path, PublicURL: s.publicURL(bucket, path), Size: int64(len(data))}, nil
}

func (s *Storage) GetPublicURL(ctx context.Context, path, bucket string) (string, error) {
	return s.publicURL(s.bucket(bucket), strings.TrimPrefix(path, "/")), nil
}

func (s *Storage) publicURL(bucket, path string) string {
	return "memory://" + bucket + "/" + path
}

func (s *Storage) Delete(ctx context.Context, paths []string, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objs := s.buckets[s.bucket(bucket)]
	for _, p := range paths {
		delete(objs, strings.TrimPrefix(p, "/"))
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix, bucket string) ([]capability.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []capability.ObjectInfo{}
	for name, o := range s.buckets[s.bucket(bucket)] {
		if strings.HasPrefix(name, prefix) {
			out = append(out, capability.ObjectInfo{Name: name, Size: int64(len(o.data)), UpdatedAt: o.updatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open devuelve el contenido de un objeto. Para tests.
func (s *Storage) Open(path, bucket string) (io.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.buckets[s.bucket(bucket)][path]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(o.data), true
}
