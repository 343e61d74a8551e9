// Package config loads cloudstore configuration from an optional YAML file,
// optional .env files and the process environment.
//
// The environment is consulted only inside Load; nothing here keeps global
// state.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/cloudstore/internal/cloudstorage"
	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/filestore"
	"github.com/koustreak/cloudstore/internal/logger"
	"github.com/koustreak/cloudstore/internal/naming"
)

// Environment variables read by Load.
const (
	EnvKeyFilename = "CLOUD_STORAGE_KEY_FILENAME"
	EnvProvider    = "CLOUD_STORAGE_PROVIDER"
	EnvEndpoint    = "CLOUD_STORAGE_ENDPOINT"
	EnvAccessKey   = "CLOUD_STORAGE_ACCESS_KEY"
	EnvSecretKey   = "CLOUD_STORAGE_SECRET_KEY"
	EnvBucket      = "CLOUD_STORAGE_BUCKET"
	EnvPath        = "CLOUD_STORAGE_PATH"
	EnvUseSSL      = "CLOUD_STORAGE_USE_SSL"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"
	EnvServerAddr  = "SERVER_ADDR"
	EnvRecordsDSN  = "RECORDS_DSN"
)

// Config is the full runtime configuration.
type Config struct {
	Storage filestore.Config `yaml:"storage"`
	Adapter AdapterConfig    `yaml:"adapter"`
	Log     logger.Config    `yaml:"log"`
	Server  ServerConfig     `yaml:"server"`
	Records RecordsConfig    `yaml:"records"`
}

// AdapterConfig holds the storage adapter settings.
type AdapterConfig struct {
	Path            string                  `yaml:"path"`
	UploadOptions   filestore.UploadOptions `yaml:"upload_options"`
	Naming          string                  `yaml:"naming"` // random, original, hash
	MaxAttempts     int                     `yaml:"max_attempts"`
	ClientCacheSize int                     `yaml:"client_cache_size"`
	Fields          map[string]bool         `yaml:"fields"`
}

// ServerConfig holds the HTTP host settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// RecordsConfig selects where upload results are persisted.
// An empty DSN keeps them in memory.
type RecordsConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: filestore.Config{
			Provider: filestore.ProviderMinIO,
			Endpoint: "localhost:9000",
		},
		Adapter: AdapterConfig{
			Naming:      "random",
			MaxAttempts: 1,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and the environment. envFiles are read as .env files;
// with none given, ./.env is used when present. Real environment variables
// win over .env values.
func Load(path string, envFiles ...string) (*Config, error) {
	lookup, err := EnvLookup(envFiles...)
	if err != nil {
		return nil, err
	}
	return LoadWith(path, lookup)
}

// EnvLookup returns a lookup over the process environment that falls back
// to the values read from envFiles (or ./.env when present).
func EnvLookup(envFiles ...string) (func(string) (string, bool), error) {
	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "failed to parse config file", err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if _, err := naming.ByName(c.Adapter.Naming); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errs.New(errs.ErrKindConfig, "configuration error: server address is required")
	}
	return nil
}

// AdapterConfig converts to the storage adapter's configuration.
func (c *Config) AdapterConfig() (cloudstorage.Config, cloudstorage.Schema, error) {
	gen, err := naming.ByName(c.Adapter.Naming)
	if err != nil {
		return cloudstorage.Config{}, nil, err
	}
	return cloudstorage.Config{
		Store:            c.Storage,
		Path:             c.Adapter.Path,
		UploadOptions:    c.Adapter.UploadOptions,
		GenerateFilename: gen,
		MaxAttempts:      c.Adapter.MaxAttempts,
		ClientCacheSize:  c.Adapter.ClientCacheSize,
	}, cloudstorage.Schema(c.Adapter.Fields), nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return map[string]string{}, nil
		}
		files = []string{".env"}
	}
	env, err := godotenv.Read(files...)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindConfig, "env file not found", err)
		}
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to parse env file", err)
	}
	return env, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvKeyFilename, &cfg.Storage.KeyFilename)
	str(EnvEndpoint, &cfg.Storage.Endpoint)
	str(EnvAccessKey, &cfg.Storage.AccessKey)
	str(EnvSecretKey, &cfg.Storage.SecretKey)
	str(EnvBucket, &cfg.Storage.Bucket)
	str(EnvPath, &cfg.Adapter.Path)
	str(EnvLogLevel, &cfg.Log.Level)
	str(EnvLogFormat, &cfg.Log.Format)
	str(EnvServerAddr, &cfg.Server.Addr)
	str(EnvRecordsDSN, &cfg.Records.DSN)

	if v, ok := lookup(EnvProvider); ok && v != "" {
		cfg.Storage.Provider = filestore.Provider(v)
	}
	if v, ok := lookup(EnvUseSSL); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindConfig, EnvUseSSL+" must be a boolean", err)
		}
		cfg.Storage.UseSSL = b
	}
	return nil
}
