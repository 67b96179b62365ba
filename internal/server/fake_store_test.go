package server

import (
	"context"
	"sync"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
)

// fakeStore is an in-memory credstore.Store double for HTTP handler tests.
// It does not model encryption; server-layer tests only need key presence
// and round-tripping, not the credstore package's own crypto guarantees.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	hash map[string]map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), hash: make(map[string]map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(ctx context.Context, key, value, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeStore) SetEX(ctx context.Context, key string, ttlSeconds int, value string) error {
	return f.Set(ctx, key, value, "")
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.hash, key)
	return nil
}

func (f *fakeStore) HSet(ctx context.Context, key string, mapping map[string]string, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hash[key]
	if !ok {
		h = make(map[string]string)
		f.hash[key] = h
	}
	for k, v := range mapping {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGetAll(ctx context.Context, key, userID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hash[key]))
	for k, v := range f.hash[key] {
		out[k] = v
	}
	return out, nil
}

var _ credstore.Store = (*fakeStore)(nil)
