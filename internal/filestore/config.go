package filestore

import (
	"path/filepath"

	"github.com/koustreak/cloudstore/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO  Provider = "minio"
	ProviderMemory Provider = "memory"
)

// Config holds all settings needed to open a client bound to one bucket.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO, "storage.googleapis.com" for GCS interop.
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey are static credentials. When both are empty the
	// client falls back to KeyFilename and then to the environment chain.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// KeyFilename is an optional credentials file (AWS shared-credentials
	// format). It must be an absolute path.
	KeyFilename string `yaml:"key_filename"`

	// Profile selects the section of KeyFilename. Empty means "default".
	Profile string `yaml:"profile"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket is the bucket this client addresses by default.
	Bucket string `yaml:"bucket"`

	// PublicBaseURL replaces the endpoint URL when building media links,
	// e.g. a CDN in front of the bucket. Links are PublicBaseURL/bucket/key.
	PublicBaseURL string `yaml:"public_base_url"`
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}

// ForBucket returns a copy of c addressing bucket.
func (c Config) ForBucket(bucket string) *Config {
	c.Bucket = bucket
	return &c
}

// Validate checks the settings every provider depends on.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errs.New(errs.ErrKindConfig, "configuration error: bucket is required")
	}
	if c.KeyFilename != "" && !filepath.IsAbs(c.KeyFilename) {
		return errs.Newf(errs.ErrKindConfig,
			"configuration error: cloud storage key filename %q must be absolute", c.KeyFilename)
	}
	return nil
}
