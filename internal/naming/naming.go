// Package naming generates remote filenames for uploads.
//
// A Generator receives the record being uploaded and an attempt counter.
// Attempt 0 is the first try; higher attempts are asked for only when the
// adapter is configured to retry on a name collision, and should return a
// different name.
package naming

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
)

// Generator produces a filename for rec or fails.
type Generator func(ctx context.Context, rec *file.Record, attempt int) (string, error)

// Func lifts a synchronous, infallible naming function into a Generator.
// The attempt counter is not passed through.
func Func(fn func(rec *file.Record) string) Generator {
	return func(ctx context.Context, rec *file.Record, _ int) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return fn(rec), nil
	}
}

// Random names the file with 32 random hex characters plus the record's
// extension. Every call yields a fresh name, whatever the attempt.
func Random(_ context.Context, rec *file.Record, _ int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errs.Wrap(errs.ErrKindOperationFailed, "failed to generate random filename", err)
	}
	return strings.ReplaceAll(id.String(), "-", "") + rec.Ext(), nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Original keeps the uploaded name, with unsafe characters replaced by '-'.
// Attempt n > 0 inserts "-n" before the extension.
func Original(_ context.Context, rec *file.Record, attempt int) (string, error) {
	name := rec.OriginalName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "record has no usable original name")
	}
	if attempt == 0 {
		return name, nil
	}

	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name, ext = name[:i], name[i:]
	}
	return name + "-" + strconv.Itoa(attempt) + ext, nil
}

// ContentHash names the file after the SHA-1 of its local content plus the
// record's extension. Identical uploads map to the same name.
func ContentHash(ctx context.Context, rec *file.Record, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(rec.LocalPath)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to open local file for hashing", err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to hash local file", err)
	}
	return hex.EncodeToString(h.Sum(nil)) + rec.Ext(), nil
}

// ByName resolves a strategy name: "random" (or empty), "original", "hash".
func ByName(name string) (Generator, error) {
	switch strings.ToLower(name) {
	case "", "random":
		return Random, nil
	case "original":
		return Original, nil
	case "hash", "contenthash":
		return ContentHash, nil
	default:
		return nil, errs.Newf(errs.ErrKindConfig, "unknown filename strategy %q", name)
	}
}
