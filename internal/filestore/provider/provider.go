// Package provider opens a filestore.Store by provider name.
package provider

import (
	"context"
	"sync"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/filestore"
	"github.com/koustreak/cloudstore/internal/filestore/memstore"
	"github.com/koustreak/cloudstore/internal/filestore/minio"
)

// NewOpener returns an Opener that dispatches on cfg.Provider.
// An empty provider means MinIO. Every memory-provider client handed out by
// one Opener shares a single in-memory store.
func NewOpener() filestore.Opener {
	var (
		once sync.Once
		mem  *memstore.Store
	)

	return func(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
		switch cfg.Provider {
		case filestore.ProviderMinIO, "":
			d, err := minio.New(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return d, nil
		case filestore.ProviderMemory:
			once.Do(func() { mem = memstore.New(cfg.PublicBaseURL) })
			return mem.Opener()(ctx, cfg)
		default:
			return nil, errs.Newf(errs.ErrKindConfig, "unknown storage provider %q", cfg.Provider)
		}
	}
}

// Open opens a single Store for cfg.
func Open(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	return NewOpener()(ctx, cfg)
}
