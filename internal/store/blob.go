package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBlobNotFound is returned by BlobStore.Get when nothing is stored under the key.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a key-scoped byte store. The invoice collection lives under a
// single key; backends only need whole-value get and put.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	Close() error
}

type ObjectMeta struct {
	Key       string
	Size      int
	UpdatedAt time.Time
}

// MemoryBlobStore keeps blobs in process memory. It is the default backend and
// the one used by tests.
type MemoryBlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	meta map[string]ObjectMeta
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		data: map[string][]byte{},
		meta: map[string]ObjectMeta{},
	}
}

func (s *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (s *MemoryBlobStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	s.data[key] = stored
	s.meta[key] = ObjectMeta{
		Key:       key,
		Size:      len(body),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// Head reports metadata for a stored key.
func (s *MemoryBlobStore) Head(_ context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[key]
	if !ok {
		return ObjectMeta{}, ErrBlobNotFound
	}
	return meta, nil
}

func (s *MemoryBlobStore) Close() error { return nil }
