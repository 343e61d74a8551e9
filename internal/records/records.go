// Package records persists upload results next to the host's own data.
//
// The adapter itself keeps no state about uploaded objects; a host that
// needs to list or look up files by name stores the returned file.Data
// through a Repository.
package records

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
)

// Repository stores file.Data keyed by bucket and filename.
type Repository interface {
	// Save inserts d or replaces the record with the same bucket and filename.
	Save(ctx context.Context, d *file.Data) error

	// Get returns the record, or a not-found error.
	Get(ctx context.Context, bucket, filename string) (*file.Data, error)

	// Delete removes the record, or returns a not-found error.
	Delete(ctx context.Context, bucket, filename string) error

	// List returns up to limit records ordered by bucket then filename.
	// A limit <= 0 returns everything.
	List(ctx context.Context, limit int) ([]*file.Data, error)

	// Close releases any held resources.
	Close() error
}

type key struct {
	bucket, filename string
}

// Memory is an in-process Repository. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[key]file.Data
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{data: make(map[key]file.Data)}
}

func (m *Memory) Save(_ context.Context, d *file.Data) error {
	if d == nil || d.Filename == "" {
		return errs.New(errs.ErrKindInvalidInput, "record has no filename")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key{d.Bucket, d.Filename}] = *d
	return nil
}

func (m *Memory) Get(_ context.Context, bucket, filename string) (*file.Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[key{bucket, filename}]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no record for %s/%s", bucket, filename)
	}
	return &d, nil
}

func (m *Memory) Delete(_ context.Context, bucket, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{bucket, filename}
	if _, ok := m.data[k]; !ok {
		return errs.Newf(errs.ErrKindNotFound, "no record for %s/%s", bucket, filename)
	}
	delete(m.data, k)
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]*file.Data, error) {
	m.mu.RLock()
	out := make([]*file.Data, 0, len(m.data))
	for _, d := range m.data {
		d := d
		out = append(out, &d)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Filename < out[j].Filename
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
