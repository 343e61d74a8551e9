package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/koustreak/cloudstore/internal/cloudstorage"
	"github.com/koustreak/cloudstore/internal/config"
	"github.com/koustreak/cloudstore/internal/filestore"
	"github.com/koustreak/cloudstore/internal/logger"
)

// app carries what the commands share. Tests replace lookup and opener.
type app struct {
	configPath string
	envFiles   []string
	bucket     string
	path       string

	lookup func(string) (string, bool)
	opener filestore.Opener

	cfg *config.Config
	log *logger.Logger
}

// makeRootCmd creates the cloudstore entrypoint.
func makeRootCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloudstore",
		Short: "Store uploaded files in an object-storage bucket",
		Long: `Command line tool for the cloudstore adapter

Uploads local files under generated names, resolves their public URLs,
checks existence and removes them. "serve" exposes the same operations
over HTTP.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	cmd.SetContext(ctx)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to read (default ./.env when present)")
	flags.StringVar(&a.bucket, "bucket", "", "bucket name, overrides "+config.EnvBucket)
	flags.StringVar(&a.path, "path", "", "remote path prefix, overrides "+config.EnvPath)

	cmd.AddCommand(
		makeServeCmd(a),
		makeUploadCmd(a),
		makeURLCmd(a),
		makeExistsCmd(a),
		makeRemoveCmd(a),
	)
	return cmd
}

// load resolves configuration with precedence flags > env > .env > file.
func (a *app) load(logOut io.Writer) error {
	base := a.lookup
	if base == nil {
		var err error
		if base, err = config.EnvLookup(a.envFiles...); err != nil {
			return err
		}
	}
	lookup := func(key string) (string, bool) {
		switch {
		case key == config.EnvBucket && a.bucket != "":
			return a.bucket, true
		case key == config.EnvPath && a.path != "":
			return a.path, true
		}
		return base(key)
	}

	cfg, err := config.LoadWith(a.configPath, lookup)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.Log
	logCfg.Output = logOut
	a.log = logger.New(&logCfg)
	return nil
}

// adapter opens a storage adapter for the loaded configuration.
func (a *app) adapter(ctx context.Context) (*cloudstorage.Adapter, error) {
	cfg, schema, err := a.cfg.AdapterConfig()
	if err != nil {
		return nil, err
	}
	opts := []cloudstorage.Option{cloudstorage.WithLogger(a.log)}
	if a.opener != nil {
		opts = append(opts, cloudstorage.WithOpener(a.opener))
	}
	return cloudstorage.New(ctx, cfg, schema, opts...)
}
