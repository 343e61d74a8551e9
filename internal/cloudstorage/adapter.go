// Package cloudstorage stores a host's uploaded files in an object-storage
// bucket instead of on local disk.
//
// The Adapter exposes the four operations a file field needs (upload,
// resolve URL, remove, check existence) and translates the storage
// service's metadata into file.Data.
//
// Usage:
//
//	a, err := cloudstorage.New(ctx, cloudstorage.Config{
//	    Store: filestore.Config{Endpoint: "localhost:9000", Bucket: "uploads"},
//	    Path:  "tests/",
//	    UploadOptions: filestore.UploadOptions{Public: true},
//	}, nil)
//	if err != nil { ... }
//	defer a.Close()
//
//	data, err := a.UploadFile(ctx, &file.Record{LocalPath: "./fixtures/hello.txt", OriginalName: "hello.txt"})
package cloudstorage

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
	"github.com/koustreak/cloudstore/internal/filestore"
	"github.com/koustreak/cloudstore/internal/filestore/provider"
	"github.com/koustreak/cloudstore/internal/logger"
	"github.com/koustreak/cloudstore/internal/naming"
)

// CompatibilityLevel is the host adapter API version implemented here.
const CompatibilityLevel = 1

const defaultClientCacheSize = 16

// SchemaTypes lists the record fields this adapter can populate and their
// value types.
var SchemaTypes = map[string]string{
	"filename":     "string",
	"originalname": "string",
	"mimetype":     "string",
	"url":          "string",
}

// SchemaFieldDefaults lists which of SchemaTypes are enabled by default.
var SchemaFieldDefaults = map[string]bool{
	"filename":     true,
	"originalname": true,
	"mimetype":     true,
	"url":          true,
}

// Schema enables or disables result fields, overriding SchemaFieldDefaults.
type Schema map[string]bool

// ErrNoMediaLink is returned by FileURL whatever the underlying failure.
var ErrNoMediaLink = errs.New(errs.ErrKindNotFound, "cloud storage cannot provide a media link for resource")

// Config configures an Adapter. It is copied by New and never changed after.
type Config struct {
	// Store addresses the default bucket and carries the credentials.
	Store filestore.Config

	// Path is prepended to generated filenames to form object keys.
	Path string

	// UploadOptions are merged into every upload.
	UploadOptions filestore.UploadOptions

	// GenerateFilename names uploads. Defaults to naming.Random.
	GenerateFilename naming.Generator

	// MaxAttempts bounds name-collision retries. 1 (the default) uploads
	// under the first generated name without checking, overwriting any
	// object already there. Above 1 the adapter checks existence and asks
	// the generator for attempt 1, 2, ... until a free name is found.
	MaxAttempts int

	// ClientCacheSize bounds how many non-default bucket clients are kept.
	// Evicted clients are closed while other goroutines may still hold
	// them, so stores must tolerate calls after Close.
	ClientCacheSize int
}

func (c Config) withDefaults() Config {
	if c.GenerateFilename == nil {
		c.GenerateFilename = naming.Random
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.ClientCacheSize < 1 {
		c.ClientCacheSize = defaultClientCacheSize
	}
	return c
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithOpener replaces the function used to open storage clients.
func WithOpener(open filestore.Opener) Option {
	return func(a *Adapter) {
		if open != nil {
			a.open = open
		}
	}
}

// Adapter persists host file records to object storage.
// It is safe for concurrent use by multiple goroutines.
type Adapter struct {
	cfg    Config
	fields []string
	log    *logger.Logger
	open   filestore.Opener

	client  filestore.Store
	clients *lru.Cache[string, filestore.Store]
	group   singleflight.Group
}

// New validates cfg, merges it over the defaults and opens the client for
// the default bucket.
func New(ctx context.Context, cfg Config, schema Schema, opts ...Option) (*Adapter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:    cfg,
		fields: enabledFields(schema),
		log:    logger.Nop(),
		open:   provider.NewOpener(),
	}
	for _, opt := range opts {
		opt(a)
	}

	clients, err := lru.NewWithEvict[string, filestore.Store](cfg.ClientCacheSize, func(bucket string, s filestore.Store) {
		if err := s.Close(); err != nil {
			a.log.With().Str("bucket", bucket).Err(err).Logger().Warn("failed to close storage client")
		}
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid client cache size", err)
	}
	a.clients = clients

	client, err := a.open(ctx, &a.cfg.Store)
	if err != nil {
		return nil, err
	}
	a.client = client

	return a, nil
}

// Bucket returns the default bucket.
func (a *Adapter) Bucket() string {
	return a.cfg.Store.Bucket
}

// Fields returns the enabled result field names, sorted.
func (a *Adapter) Fields() []string {
	return append([]string(nil), a.fields...)
}

// Ping verifies the default bucket when the store supports it. Stores
// without a Ping method are assumed reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	p, ok := a.client.(interface {
		Ping(ctx context.Context, bucket string) error
	})
	if !ok {
		return nil
	}
	return p.Ping(ctx, a.cfg.Store.Bucket)
}

// Close closes the default client and every cached bucket client.
func (a *Adapter) Close() error {
	a.clients.Purge()
	return a.client.Close()
}

// UploadFile names rec, uploads its local file and returns the stored
// object's metadata. rec.Path and rec.Filename are overwritten with the
// remote location. Generator and storage errors are returned unchanged.
func (a *Adapter) UploadFile(ctx context.Context, rec *file.Record) (*file.Data, error) {
	filename, err := a.cfg.GenerateFilename(ctx, rec, 0)
	if err != nil {
		return nil, err
	}

	client, bucket, err := a.clientFor(ctx, rec.Bucket)
	if err != nil {
		return nil, err
	}

	if a.cfg.MaxAttempts > 1 {
		filename, err = a.freeName(ctx, client, bucket, rec, filename)
		if err != nil {
			return nil, err
		}
	}

	localPath, err := filepath.Abs(rec.LocalPath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "cannot resolve local path", err)
	}

	rec.Path = a.cfg.Path
	rec.Filename = filename
	key := a.remoteKey(rec)

	opts := a.cfg.UploadOptions.Merge(filestore.UploadOptions{Destination: key})
	if opts.ContentType == "" {
		opts.ContentType = rec.Mimetype
	}

	log := a.log.With().Str("filename", filename).Str("bucket", bucket).Str("key", key).Logger()
	log.Debug("uploading file")

	info, err := client.Upload(ctx, bucket, localPath, opts)
	if err != nil {
		return nil, err
	}

	log.Debug("file upload successful")

	return &file.Data{
		Filename:     filename,
		Size:         info.Size,
		Mimetype:     info.ContentType,
		Path:         a.cfg.Path,
		OriginalName: rec.OriginalName,
		URL:          info.MediaLink,
		Bucket:       bucket,
		ETag:         info.ETag,
		MD5:          info.MD5Hash,
		StorageClass: info.StorageClass,
	}, nil
}

// FileURL returns the live media link of rec's object. Any failure is
// logged and reported as ErrNoMediaLink.
func (a *Adapter) FileURL(ctx context.Context, rec *file.Record) (string, error) {
	key := a.remoteKey(rec)

	client, bucket, err := a.clientFor(ctx, rec.Bucket)
	if err == nil {
		var info *filestore.ObjectInfo
		info, err = client.Stat(ctx, bucket, key)
		if err == nil && info.MediaLink != "" {
			return info.MediaLink, nil
		}
		if err == nil {
			err = errs.New(errs.ErrKindNotFound, "object has no media link")
		}
	}

	a.log.ErrorWith("cannot resolve media link", err, map[string]any{
		"bucket": bucket,
		"key":    key,
	})
	return "", ErrNoMediaLink
}

// RemoveFile deletes rec's object. Storage errors are returned unchanged.
func (a *Adapter) RemoveFile(ctx context.Context, rec *file.Record) error {
	if rec.Filename == "" {
		return errs.New(errs.ErrKindInvalidInput, "record has no filename")
	}
	client, bucket, err := a.clientFor(ctx, rec.Bucket)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bucket, a.remoteKey(rec))
}

// FileExists reports whether filename exists under the configured path in
// the default bucket: (false, nil) when absent, (true, nil) when present.
// Per-record bucket and path overrides are not consulted.
func (a *Adapter) FileExists(ctx context.Context, filename string) (bool, error) {
	if filename == "" {
		return false, errs.New(errs.ErrKindInvalidInput, "filename is required")
	}
	return a.client.Exists(ctx, a.cfg.Store.Bucket, joinKey(a.cfg.Path, filename))
}

// freeName retries the generator while the candidate name is taken.
func (a *Adapter) freeName(ctx context.Context, client filestore.Store, bucket string, rec *file.Record, name string) (string, error) {
	for attempt := 1; ; attempt++ {
		taken, err := client.Exists(ctx, bucket, joinKey(a.cfg.Path, name))
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		if attempt >= a.cfg.MaxAttempts {
			return "", errs.Newf(errs.ErrKindConflict,
				"no free filename after %d attempts (last tried %q)", a.cfg.MaxAttempts, name)
		}
		a.log.With().Str("filename", name).Int("attempt", attempt).Logger().Debug("filename taken, retrying")

		name, err = a.cfg.GenerateFilename(ctx, rec, attempt)
		if err != nil {
			return "", err
		}
	}
}

// clientFor returns the client and bucket for a record's bucket override.
func (a *Adapter) clientFor(ctx context.Context, bucket string) (filestore.Store, string, error) {
	if bucket == "" || bucket == a.cfg.Store.Bucket {
		return a.client, a.cfg.Store.Bucket, nil
	}
	if c, ok := a.clients.Get(bucket); ok {
		return c, bucket, nil
	}

	// The open is shared by every caller waiting on bucket, so it must not
	// inherit the first caller's cancellation. Each caller still stops
	// waiting when its own ctx is done.
	openCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(bucket, func() (any, error) {
		if c, ok := a.clients.Get(bucket); ok {
			return c, nil
		}
		c, err := a.open(openCtx, a.cfg.Store.ForBucket(bucket))
		if err != nil {
			return nil, err
		}
		a.clients.Add(bucket, c)
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, bucket, errs.Wrap(errs.ErrKindTimeout, "opening storage client canceled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, bucket, res.Err
		}
		return res.Val.(filestore.Store), bucket, nil
	}
}

// remoteKey is the single derivation of an object key from a record.
func (a *Adapter) remoteKey(rec *file.Record) string {
	prefix := rec.Path
	if prefix == "" {
		prefix = a.cfg.Path
	}
	return joinKey(prefix, rec.Filename)
}

// joinKey concatenates prefix and filename. Object keys never start with '/',
// so a root prefix addresses the bucket root.
func joinKey(prefix, filename string) string {
	return strings.TrimLeft(prefix+filename, "/")
}

func enabledFields(schema Schema) []string {
	enabled := make(map[string]bool, len(SchemaFieldDefaults)+len(schema))
	for k, v := range SchemaFieldDefaults {
		enabled[k] = v
	}
	for k, v := range schema {
		enabled[k] = v
	}

	fields := make([]string, 0, len(enabled))
	for k, v := range enabled {
		if v {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
