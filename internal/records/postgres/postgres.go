// Package postgres is a PostgreSQL records.Repository backed by pgxpool.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
)

const (
	defaultMaxConns        = 10
	defaultMinConns        = 1
	defaultConnectTimeout  = 5 * time.Second
	defaultMaxConnIdleTime = 5 * time.Minute
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cloudstore_files (
	bucket        TEXT        NOT NULL,
	filename      TEXT        NOT NULL,
	path          TEXT        NOT NULL DEFAULT '',
	size          BIGINT      NOT NULL DEFAULT 0,
	mimetype      TEXT        NOT NULL DEFAULT '',
	originalname  TEXT        NOT NULL DEFAULT '',
	url           TEXT        NOT NULL DEFAULT '',
	etag          TEXT        NOT NULL DEFAULT '',
	md5           TEXT        NOT NULL DEFAULT '',
	storage_class TEXT        NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bucket, filename)
)`

const upsertSQL = `
INSERT INTO cloudstore_files
	(bucket, filename, path, size, mimetype, originalname, url, etag, md5, storage_class, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (bucket, filename) DO UPDATE SET
	path = EXCLUDED.path,
	size = EXCLUDED.size,
	mimetype = EXCLUDED.mimetype,
	originalname = EXCLUDED.originalname,
	url = EXCLUDED.url,
	etag = EXCLUDED.etag,
	md5 = EXCLUDED.md5,
	storage_class = EXCLUDED.storage_class,
	updated_at = now()`

const selectColumns = `bucket, filename, path, size, mimetype, originalname, url, etag, md5, storage_class`

// Repository implements records.Repository on PostgreSQL.
// It is safe for concurrent use by multiple goroutines.
type Repository struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and creates the table if
// needed.
func New(ctx context.Context, dsn string) (*Repository, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid records DSN", err)
	}
	poolCfg.MaxConns = defaultMaxConns
	poolCfg.MinConns = defaultMinConns
	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	r := &Repository{pool: pool}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// EnsureSchema creates the cloudstore_files table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return mapError(err, "failed to create records table")
	}
	return nil
}

// --- records.Repository implementation ---

func (r *Repository) Save(ctx context.Context, d *file.Data) error {
	if d == nil || d.Filename == "" {
		return errs.New(errs.ErrKindInvalidInput, "record has no filename")
	}
	_, err := r.pool.Exec(ctx, upsertSQL,
		d.Bucket, d.Filename, d.Path, d.Size, d.Mimetype, d.OriginalName,
		d.URL, d.ETag, d.MD5, d.StorageClass)
	if err != nil {
		return mapError(err, "failed to save record")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, bucket, filename string) (*file.Data, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM cloudstore_files WHERE bucket = $1 AND filename = $2`,
		bucket, filename)

	d := &file.Data{}
	if err := row.Scan(&d.Bucket, &d.Filename, &d.Path, &d.Size, &d.Mimetype, &d.OriginalName,
		&d.URL, &d.ETag, &d.MD5, &d.StorageClass); err != nil {
		return nil, mapError(err, "failed to get record")
	}
	return d, nil
}

func (r *Repository) Delete(ctx context.Context, bucket, filename string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM cloudstore_files WHERE bucket = $1 AND filename = $2`, bucket, filename)
	if err != nil {
		return mapError(err, "failed to delete record")
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.ErrKindNotFound, "no record for %s/%s", bucket, filename)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]*file.Data, error) {
	sql := `SELECT ` + selectColumns + ` FROM cloudstore_files ORDER BY bucket, filename`
	args := []any{}
	if limit > 0 {
		sql += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "failed to list records")
	}
	defer rows.Close()

	var out []*file.Data
	for rows.Next() {
		d := &file.Data{}
		if err := rows.Scan(&d.Bucket, &d.Filename, &d.Path, &d.Size, &d.Mimetype, &d.OriginalName,
			&d.URL, &d.ETag, &d.MD5, &d.StorageClass); err != nil {
			return nil, mapError(err, "failed to scan record")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to list records")
	}
	return out, nil
}

// Close drains the connection pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}
