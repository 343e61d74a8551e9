// Package filestore defines the storage client capability the adapter
// talks to.
//
// Providers (MinIO / any S3-compatible endpoint, in-memory) implement Store.
// Callers depend only on this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	cfg.Bucket = "uploads"
//	store, err := provider.Open(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.Upload(ctx, "uploads", "/tmp/hello.txt", filestore.UploadOptions{
//	    Destination: "tests/hello.txt",
//	})
package filestore

import "context"

// Store is the single interface all file storage providers must implement.
type Store interface {
	// Upload writes the file at localPath to opts.Destination inside bucket
	// and returns the stored object's metadata.
	Upload(ctx context.Context, bucket, localPath string, opts UploadOptions) (*ObjectInfo, error)

	// Stat returns live metadata for the object at key inside bucket.
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// Exists reports whether the object at key inside bucket exists.
	// A missing object is (false, nil), never an error.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Delete removes the object at key inside bucket.
	Delete(ctx context.Context, bucket, key string) error

	// Close releases any held resources.
	Close() error
}

// Opener builds a Store bound to cfg.
type Opener func(ctx context.Context, cfg *Config) (Store, error)
