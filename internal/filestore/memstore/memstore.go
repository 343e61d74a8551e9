// Package memstore provides an in-memory filestore.Store.
//
// All buckets live in one Store value, so clients opened for different
// buckets through Opener share content. Deleting a missing object fails
// with a not-found error, like Cloud Storage does.
package memstore

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/filestore"
)

// Op names a Store method for error injection.
type Op string

const (
	OpUpload Op = "upload"
	OpStat   Op = "stat"
	OpExists Op = "exists"
	OpDelete Op = "delete"
)

// DefaultBaseURL prefixes media links when New is given an empty base.
const DefaultBaseURL = "memory://cloudstore"

type object struct {
	data         []byte
	contentType  string
	etag         string
	md5          string
	storageClass string
	public       bool
	metadata     map[string]string
	modified     time.Time
}

// Store keeps objects in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	base     *url.URL
	buckets  map[string]map[string]*object
	failures map[Op]error
	now      func() time.Time
}

// New returns an empty Store whose media links start with baseURL.
func New(baseURL string) *Store {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = &url.URL{Scheme: "memory", Host: "cloudstore"}
	}
	return &Store{
		base:     base,
		buckets:  make(map[string]map[string]*object),
		failures: make(map[Op]error),
		now:      time.Now,
	}
}

// Opener returns a filestore.Opener that hands out s for every bucket.
func (s *Store) Opener() filestore.Opener {
	return func(_ context.Context, cfg *filestore.Config) (filestore.Store, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Put stores data directly, bypassing the local filesystem.
func (s *Store) Put(bucket, key string, data []byte, contentType string) *filestore.ObjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.newObject(data, filestore.UploadOptions{ContentType: contentType})
	s.bucket(bucket)[key] = obj
	return s.info(bucket, key, obj)
}

// Keys returns the number of objects in bucket.
func (s *Store) Keys(bucket string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[bucket])
}

// Public reports whether the object was uploaded as world-readable.
func (s *Store) Public(bucket, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	return ok && obj.public
}

// --- filestore.Store implementation ---

func (s *Store) Upload(ctx context.Context, bucket, localPath string, opts filestore.UploadOptions) (*filestore.ObjectInfo, error) {
	if err := s.check(ctx, OpUpload); err != nil {
		return nil, err
	}
	if opts.Destination == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "upload destination is required")
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindNotFound, "local file not found", err)
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read local file", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.newObject(data, opts)
	s.bucket(bucket)[opts.Destination] = obj
	return s.info(bucket, opts.Destination, obj), nil
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	if err := s.check(ctx, OpStat); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "object %s/%s not found", bucket, key)
	}
	return s.info(bucket, key, obj), nil
}

func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := s.check(ctx, OpExists); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[bucket][key]
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := s.check(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objs := s.buckets[bucket]
	if _, ok := objs[key]; !ok {
		return errs.Newf(errs.ErrKindNotFound, "object %s/%s not found", bucket, key)
	}
	delete(objs, key)
	return nil
}

// Close is a no-op; content survives so other clients keep seeing it.
func (s *Store) Close() error {
	return nil
}

// --- helpers ---

func (s *Store) check(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, string(op)+" canceled", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[op]
}

// bucket must be called with mu held for writing.
func (s *Store) bucket(name string) map[string]*object {
	objs, ok := s.buckets[name]
	if !ok {
		objs = make(map[string]*object)
		s.buckets[name] = objs
	}
	return objs
}

func (s *Store) newObject(data []byte, opts filestore.UploadOptions) *object {
	sum := md5.Sum(data)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	storageClass := opts.StorageClass
	if storageClass == "" {
		storageClass = "STANDARD"
	}
	return &object{
		data:         append([]byte(nil), data...),
		contentType:  contentType,
		etag:         hex.EncodeToString(sum[:]),
		md5:          base64.StdEncoding.EncodeToString(sum[:]),
		storageClass: storageClass,
		public:       opts.Public,
		metadata:     opts.Metadata,
		modified:     s.now(),
	}
}

func (s *Store) info(bucket, key string, obj *object) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          key,
		Bucket:       bucket,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		MediaLink:    s.base.JoinPath(bucket, key).String(),
		ETag:         obj.etag,
		MD5Hash:      obj.md5,
		StorageClass: obj.storageClass,
		LastModified: obj.modified,
	}
}
