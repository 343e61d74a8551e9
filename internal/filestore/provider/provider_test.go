package provider

import (
	"context"
	"testing"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/filestore"
	"github.com/koustreak/cloudstore/internal/filestore/memstore"
	"github.com/koustreak/cloudstore/internal/filestore/minio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Providers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, &filestore.Config{Provider: filestore.ProviderMemory, Bucket: "b"})
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)

	s, err = Open(ctx, &filestore.Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.IsType(t, &minio.Driver{}, s)

	_, err = Open(ctx, &filestore.Config{Provider: "azure", Bucket: "b"})
	assert.True(t, errs.IsConfig(err))
}

func TestNewOpener_MemoryIsShared(t *testing.T) {
	ctx := context.Background()
	open := NewOpener()

	a, err := open(ctx, &filestore.Config{Provider: filestore.ProviderMemory, Bucket: "a"})
	require.NoError(t, err)
	b, err := open(ctx, &filestore.Config{Provider: filestore.ProviderMemory, Bucket: "b"})
	require.NoError(t, err)

	assert.Same(t, a, b)
}
