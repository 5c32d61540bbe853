// cartstore/local_cartstore.go

package cartstore

import (
	"context"
	"sync"
)

// LocalCartStore keeps values in memory. Nothing survives the process; it
// backs tests and throwaway sessions.
type LocalCartStore struct {
	mu    sync.RWMutex
	store map[string][]byte
}

// NewLocalCartStore returns an empty store.
func NewLocalCartStore() *LocalCartStore {
	return &LocalCartStore{
		store: make(map[string][]byte),
	}
}

// Initialize does nothing.
func (l *LocalCartStore) Initialize(ctx context.Context) error {
	return nil
}

// Get returns a copy of the value under key.
func (l *LocalCartStore) Get(ctx context.Context, key string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.store[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), val...), nil
}

// Set stores a copy of value under key.
func (l *LocalCartStore) Set(ctx context.Context, key string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.store[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (l *LocalCartStore) Delete(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.store, key)
	return nil
}

// Ping always reports true.
func (l *LocalCartStore) Ping(ctx context.Context) bool {
	return true
}
