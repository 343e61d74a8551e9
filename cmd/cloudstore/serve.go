package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/koustreak/cloudstore/internal/records"
	"github.com/koustreak/cloudstore/internal/records/postgres"
	"github.com/koustreak/cloudstore/internal/server"
)

func makeServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the file API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			adapter, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			defer adapter.Close()

			if err := adapter.Ping(ctx); err != nil {
				return err
			}
			a.log.With().
				Str("bucket", adapter.Bucket()).
				Any("fields", adapter.Fields()).
				Logger().
				Info("storage ready")

			repo, err := a.records(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			srv := server.New(adapter, repo, a.log, server.Config{
				MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
			})
			if err := srv.ListenAndServe(ctx, a.cfg.Server.Addr, a.cfg.Server.ShutdownTimeout); err != nil {
				return err
			}
			a.log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides SERVER_ADDR")
	return cmd
}

// records opens PostgreSQL when a DSN is configured, memory otherwise.
func (a *app) records(ctx context.Context) (records.Repository, error) {
	if a.cfg.Records.DSN == "" {
		a.log.Warn("no records DSN configured, keeping upload records in memory")
		return records.NewMemory(), nil
	}
	repo, err := postgres.New(ctx, a.cfg.Records.DSN)
	if err != nil {
		return nil, err
	}
	a.log.Info("records stored in postgres")
	return repo, nil
}
