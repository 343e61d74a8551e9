package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
	"github.com/koustreak/cloudstore/internal/records"
)

var _ records.Repository = (*Repository)(nil)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), errs.ErrKindNotFound},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"connection failure", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"bad password", &pgconn.PgError{Code: "28P01"}, errs.ErrKindPermissionDenied},
		{"too long", &pgconn.PgError{Code: "22001"}, errs.ErrKindInvalidInput},
		{"canceled by server", &pgconn.PgError{Code: "57014"}, errs.ErrKindTimeout},
		{"other sqlstate", &pgconn.PgError{Code: "23505"}, errs.ErrKindOperationFailed},
		{"plain", errors.New("boom"), errs.ErrKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			assert.Equal(t, tt.want, errs.KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, mapError(nil, "op"))
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz")
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
}

// TestRepository_Postgres runs against a real database when RECORDS_TEST_DSN is set.
func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("RECORDS_TEST_DSN")
	if dsn == "" {
		t.Skip("RECORDS_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := New(ctx, dsn)
	require.NoError(t, err)
	defer repo.Close()

	bucket := fmt.Sprintf("test-%d", time.Now().UnixNano())
	d := &file.Data{
		Filename:     "hello.txt",
		Bucket:       bucket,
		Path:         "tests/",
		Size:         12,
		Mimetype:     "text/plain",
		OriginalName: "hello.txt",
		URL:          "https://storage.example.com/" + bucket + "/tests/hello.txt",
		ETag:         "6f5902ac237024bdd0c176cb93063dc4",
		MD5:          "b1kCrCNwJL3QwXbLkwY9xA==",
		StorageClass: "STANDARD",
	}

	require.NoError(t, repo.Save(ctx, d))
	require.NoError(t, repo.Save(ctx, d))

	got, err := repo.Get(ctx, bucket, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, *d, *got)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	require.NoError(t, repo.Delete(ctx, bucket, "hello.txt"))
	_, err = repo.Get(ctx, bucket, "hello.txt")
	assert.True(t, errs.IsNotFound(err))
	assert.True(t, errs.IsNotFound(repo.Delete(ctx, bucket, "hello.txt")))
}
