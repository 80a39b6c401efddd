// Package aferofs implements the object-store gateway over an afero
// filesystem. With an OsFs it backs local development; with a MemMapFs it
// backs hermetic tests.
package aferofs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/objectstore"
)

// metaDir holds per-object sidecar metadata inside each bucket directory.
const metaDir = ".meta"

type objectMeta struct {
	ContentType  string            `json:"content_type"`
	ETag         string            `json:"etag"`
	Tags         map[string]string `json:"tags,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store implements objectstore.Gateway over an afero.Fs rooted at Root.
type Store struct {
	fs   afero.Fs
	root string

	mu sync.RWMutex
}

var _ objectstore.Gateway = (*Store)(nil)

// New creates a store over the given filesystem. Root may be empty.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewMem creates an in-memory store for tests.
func NewMem() *Store {
	return New(afero.NewMemMapFs(), "")
}

func (s *Store) objectPath(bucket, key string) string {
	return path.Join(s.root, bucket, key)
}

func (s *Store) metaPath(bucket, key string) string {
	return path.Join(s.root, bucket, metaDir, key+".json")
}

func (s *Store) readMeta(bucket, key string) (*objectMeta, error) {
	raw, err := afero.ReadFile(s.fs, s.metaPath(bucket, key))
	if err != nil {
		return nil, err
	}
	var m objectMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) writeMeta(bucket, key string, m *objectMeta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p := s.metaPath(bucket, key)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, raw, 0o644)
}

// Get returns the object bytes, or kind.ErrNotFound.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, err := afero.ReadFile(s.fs, s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", kind.ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// Put writes the object and its sidecar metadata.
func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putLocked(bucket, key, body, contentType, nil)
}

func (s *Store) putLocked(bucket, key string, body []byte, contentType string, tags map[string]string) error {
	p := s.objectPath(bucket, key)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	if err := afero.WriteFile(s.fs, p, body, 0o644); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	sum := sha256.Sum256(body)
	return s.writeMeta(bucket, key, &objectMeta{
		ContentType:  contentType,
		ETag:         "sha256:" + hex.EncodeToString(sum[:]),
		Tags:         tags,
		LastModified: time.Now().UTC(),
	})
}

// Head returns object metadata, or kind.ErrNotFound.
func (s *Store) Head(ctx context.Context, bucket, key string) (*objectstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fi, err := s.fs.Stat(s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", kind.ErrNotFound, bucket, key)
		}
		return nil, err
	}

	info := &objectstore.ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
	}
	if m, err := s.readMeta(bucket, key); err == nil {
		info.ETag = m.ETag
		info.ContentType = m.ContentType
		info.LastModified = m.LastModified
	}
	return info, nil
}

// Exists reports whether the object exists.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := afero.Exists(s.fs, s.objectPath(bucket, key))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// List returns all keys under prefix in lexicographic order.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base := path.Join(s.root, bucket)
	var keys []string
	err := afero.Walk(s.fs, base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(strings.TrimPrefix(p, base), "/")
		if strings.HasPrefix(key, metaDir+"/") {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Copy duplicates the object and verifies length and ETag afterward.
func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	s.mu.Lock()

	body, err := afero.ReadFile(s.fs, s.objectPath(srcBucket, srcKey))
	if err != nil {
		s.mu.Unlock()
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", kind.ErrNotFound, srcBucket, srcKey)
		}
		return err
	}

	var contentType string
	if m, err := s.readMeta(srcBucket, srcKey); err == nil {
		contentType = m.ContentType
	}
	if err := s.putLocked(dstBucket, dstKey, body, contentType, nil); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	src, err := s.Head(ctx, srcBucket, srcKey)
	if err != nil {
		return fmt.Errorf("head source after copy: %w", err)
	}
	dst, err := s.Head(ctx, dstBucket, dstKey)
	if err != nil {
		return fmt.Errorf("head destination after copy: %w", err)
	}
	if src.Size != dst.Size || src.ETag != dst.ETag {
		return fmt.Errorf("%w: src size=%d etag=%s, dst size=%d etag=%s",
			kind.ErrCopyVerification, src.Size, src.ETag, dst.Size, dst.ETag)
	}
	return nil
}

// Delete removes the object and its metadata. Missing objects are ignored.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.objectPath(bucket, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	_ = s.fs.Remove(s.metaPath(bucket, key))
	return nil
}

// Tag replaces the object's tag set.
func (s *Store) Tag(ctx context.Context, bucket, key string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readMeta(bucket, key)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", kind.ErrNotFound, bucket, key)
		}
		return err
	}
	m.Tags = tags
	return s.writeMeta(bucket, key, m)
}

// GetTags returns the object's tag set.
func (s *Store) GetTags(ctx context.Context, bucket, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.readMeta(bucket, key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", kind.ErrNotFound, bucket, key)
		}
		return nil, err
	}
	if m.Tags == nil {
		return map[string]string{}, nil
	}
	return m.Tags, nil
}
