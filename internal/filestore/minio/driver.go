// Package minio provides a MinIO implementation of filestore.Store.
//
// It works against any S3-compatible endpoint (MinIO, AWS S3, GCS in
// interoperability mode).
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	cfg.Bucket = "uploads"
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultStorageClass = "STANDARD"
	aclHeader           = "x-amz-acl"
	publicReadACL       = "public-read"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client   *miniogo.Client
	linkBase *url.URL
}

// New builds a client for cfg. No request is made; call Ping to verify
// the endpoint and bucket.
func New(_ context.Context, cfg *filestore.Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentialsFor(cfg),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	linkBase := client.EndpointURL()
	if cfg.PublicBaseURL != "" {
		linkBase, err = url.Parse(strings.TrimRight(cfg.PublicBaseURL, "/"))
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "invalid public base url", err)
		}
	}

	return &Driver{client: client, linkBase: linkBase}, nil
}

// credentialsFor picks static keys, then the credentials file, then the
// environment.
func credentialsFor(cfg *filestore.Config) *credentials.Credentials {
	switch {
	case cfg.AccessKey != "" || cfg.SecretKey != "":
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	case cfg.KeyFilename != "":
		return credentials.NewFileAWSCredentials(cfg.KeyFilename, cfg.Profile)
	default:
		return credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}
}

// Ping verifies the endpoint is reachable and bucket exists.
func (d *Driver) Ping(ctx context.Context, bucket string) error {
	ok, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", bucket)
	}
	return nil
}

// --- filestore.Store implementation ---

// Upload streams the local file to opts.Destination and returns the stored
// object's metadata.
func (d *Driver) Upload(ctx context.Context, bucket, localPath string, opts filestore.UploadOptions) (*filestore.ObjectInfo, error) {
	if opts.Destination == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "upload destination is required")
	}

	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindNotFound, "local file not found", err)
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open local file", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to stat local file", err)
	}

	// Hash first, then rewind for the upload itself.
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read local file", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to rewind local file", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		if m, err := mimetype.DetectFile(localPath); err == nil {
			contentType = m.String()
		}
	}

	_, err = d.client.PutObject(ctx, bucket, opts.Destination, f, stat.Size(), putOptions(opts, contentType))
	if err != nil {
		return nil, mapError(err, "failed to upload object")
	}

	info, err := d.Stat(ctx, bucket, opts.Destination)
	if err != nil {
		return nil, err
	}
	info.MD5Hash = base64.StdEncoding.EncodeToString(h.Sum(nil))
	return info, nil
}

// Stat returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) Stat(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}

	storageClass := stat.StorageClass
	if storageClass == "" {
		storageClass = defaultStorageClass
	}

	etag := strings.Trim(stat.ETag, `"`)
	return &filestore.ObjectInfo{
		Key:          key,
		Bucket:       bucket,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		MediaLink:    d.mediaLink(bucket, key),
		ETag:         etag,
		MD5Hash:      md5FromETag(etag),
		StorageClass: storageClass,
		LastModified: stat.LastModified,
	}, nil
}

// Exists reports whether the object is present. A missing key is not an error.
func (d *Driver) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, mapError(err, "failed to check object existence")
}

// Delete removes the object. S3 semantics apply: deleting a missing key succeeds.
func (d *Driver) Delete(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// --- helpers ---

func (d *Driver) mediaLink(bucket, key string) string {
	return d.linkBase.JoinPath(bucket, key).String()
}

func putOptions(opts filestore.UploadOptions, contentType string) miniogo.PutObjectOptions {
	po := miniogo.PutObjectOptions{
		ContentType:        contentType,
		CacheControl:       opts.CacheControl,
		ContentDisposition: opts.ContentDisposition,
		StorageClass:       opts.StorageClass,
	}
	if len(opts.Metadata) > 0 || opts.Public {
		po.UserMetadata = make(map[string]string, len(opts.Metadata)+1)
		for k, v := range opts.Metadata {
			po.UserMetadata[k] = v
		}
	}
	if opts.Public {
		po.UserMetadata[aclHeader] = publicReadACL
	}
	return po
}

// md5FromETag converts a single-part S3 ETag (hex MD5) to base64.
// Multipart ETags ("<hex>-<parts>") carry no content digest.
func md5FromETag(etag string) string {
	if len(etag) != 2*md5.Size {
		return ""
	}
	raw, err := hex.DecodeString(etag)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}
