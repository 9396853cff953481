// Package storage holds the object-store side of document content.
package storage

import (
	"context"
	"sync"
	"time"
)

// Blobs is what the lifecycle engine needs from object storage.
type Blobs interface {
	Presign(ctx context.Context, key string, expires time.Duration) (string, error)
	Remove(ctx context.Context, keys []string) error
}

// MemoryBlobs tracks removals in memory and hands out non-signed URLs. Used
// when no object store is configured, and in tests.
type MemoryBlobs struct {
	BaseURL string
	Err     error

	mu      sync.Mutex
	removed []string
}

func (m *MemoryBlobs) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	if m.BaseURL == "" {
		return "", nil
	}
	return m.BaseURL + "/" + key, nil
}

func (m *MemoryBlobs) Remove(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.removed = append(m.removed, keys...)
	return nil
}

func (m *MemoryBlobs) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}
