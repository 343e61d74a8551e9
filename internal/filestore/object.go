package filestore

import (
	"maps"
	"time"
)

// ObjectInfo describes a single object stored in a bucket, as reported by
// the backend.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "uploads/photo.jpg").
	Key string

	// Bucket is the bucket holding the object.
	Bucket string

	// Size is the byte size of the object.
	Size int64

	// ContentType is the MIME type (e.g. "image/jpeg").
	ContentType string

	// MediaLink is the direct retrieval URL for the object.
	MediaLink string

	// ETag is the object's entity tag, without enclosing quotes.
	ETag string

	// MD5Hash is the base64-encoded MD5 digest of the content.
	// Empty when the backend does not expose it.
	MD5Hash string

	// StorageClass is the storage tier (e.g. "STANDARD").
	StorageClass string

	// LastModified is when the object was last written.
	LastModified time.Time
}

// UploadOptions are per-upload settings. Zero values mean "backend default".
type UploadOptions struct {
	// Destination is the object key to write. Required.
	Destination string `yaml:"-"`

	// ContentType overrides content detection.
	ContentType string `yaml:"content_type"`

	// Public makes the object world-readable.
	Public bool `yaml:"public"`

	CacheControl       string `yaml:"cache_control"`
	ContentDisposition string `yaml:"content_disposition"`
	StorageClass       string `yaml:"storage_class"`

	// Metadata is user-defined metadata stored with the object.
	Metadata map[string]string `yaml:"metadata"`
}

// Merge returns o with every non-zero field of override applied on top.
// Metadata maps are merged key by key.
func (o UploadOptions) Merge(override UploadOptions) UploadOptions {
	out := o
	if override.Destination != "" {
		out.Destination = override.Destination
	}
	if override.ContentType != "" {
		out.ContentType = override.ContentType
	}
	if override.Public {
		out.Public = true
	}
	if override.CacheControl != "" {
		out.CacheControl = override.CacheControl
	}
	if override.ContentDisposition != "" {
		out.ContentDisposition = override.ContentDisposition
	}
	if override.StorageClass != "" {
		out.StorageClass = override.StorageClass
	}
	if len(o.Metadata) > 0 || len(override.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(o.Metadata)+len(override.Metadata))
		maps.Copy(out.Metadata, o.Metadata)
		maps.Copy(out.Metadata, override.Metadata)
	}
	return out
}
