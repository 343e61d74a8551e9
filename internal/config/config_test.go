package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/filestore"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const sampleYAML = `
storage:
  provider: minio
  endpoint: storage.example.com
  bucket: covela-bucket
  use_ssl: true
adapter:
  path: tests/
  naming: original
  max_attempts: 3
  upload_options:
    public: true
    cache_control: max-age=3600
  fields:
    url: false
    size: true
server:
  addr: ":9090"
  shutdown_timeout: 5s
`

func TestLoadWith_YAML(t *testing.T) {
	cfg, err := LoadWith(writeFile(t, "cloudstore.yaml", sampleYAML), envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, filestore.ProviderMinIO, cfg.Storage.Provider)
	assert.Equal(t, "storage.example.com", cfg.Storage.Endpoint)
	assert.Equal(t, "covela-bucket", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, "tests/", cfg.Adapter.Path)
	assert.Equal(t, 3, cfg.Adapter.MaxAttempts)
	assert.True(t, cfg.Adapter.UploadOptions.Public)
	assert.Equal(t, "max-age=3600", cfg.Adapter.UploadOptions.CacheControl)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)

	// defaults survive for keys the file does not set
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, int64(32<<20), cfg.Server.MaxUploadBytes)
}

func TestLoadWith_EnvOverrides(t *testing.T) {
	cfg, err := LoadWith(writeFile(t, "cloudstore.yaml", sampleYAML), envMap(map[string]string{
		EnvKeyFilename: "/etc/cloudstore/credentials",
		EnvBucket:      "other-bucket",
		EnvPath:        "media/",
		EnvUseSSL:      "false",
		EnvProvider:    "memory",
		EnvRecordsDSN:  "postgres://localhost/cloudstore",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/etc/cloudstore/credentials", cfg.Storage.KeyFilename)
	assert.Equal(t, "other-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "media/", cfg.Adapter.Path)
	assert.False(t, cfg.Storage.UseSSL)
	assert.Equal(t, filestore.ProviderMemory, cfg.Storage.Provider)
	assert.Equal(t, "postgres://localhost/cloudstore", cfg.Records.DSN)
}

func TestLoadWith_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{"missing file", "/does/not/exist.yaml", nil},
		{"no bucket", "", nil},
		{"relative key filename", "", map[string]string{EnvBucket: "b", EnvKeyFilename: "creds.ini"}},
		{"bad bool", "", map[string]string{EnvBucket: "b", EnvUseSSL: "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(tt.path, envMap(tt.env))
			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
		})
	}

	_, err := LoadWith(writeFile(t, "bad.yaml", "storage: [unclosed"), envMap(nil))
	assert.True(t, errs.IsConfig(err))

	_, err = LoadWith(writeFile(t, "naming.yaml", "storage: {bucket: b}\nadapter: {naming: sequential}\n"), envMap(nil))
	assert.True(t, errs.IsConfig(err))
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "CLOUD_STORAGE_BUCKET=from-dotenv\nCLOUD_STORAGE_PATH=uploads/\n")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	if _, set := os.LookupEnv(EnvBucket); !set {
		assert.Equal(t, "from-dotenv", cfg.Storage.Bucket)
	}

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.True(t, errs.IsConfig(err))
}

func TestConfig_AdapterConfig(t *testing.T) {
	cfg, err := LoadWith(writeFile(t, "cloudstore.yaml", sampleYAML), envMap(nil))
	require.NoError(t, err)

	ac, schema, err := cfg.AdapterConfig()
	require.NoError(t, err)

	assert.Equal(t, "covela-bucket", ac.Store.Bucket)
	assert.Equal(t, "tests/", ac.Path)
	assert.Equal(t, 3, ac.MaxAttempts)
	assert.NotNil(t, ac.GenerateFilename)
	assert.False(t, schema["url"])
	assert.True(t, schema["size"])
}
