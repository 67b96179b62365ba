package connector

import (
	"context"
	"sync"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
)

// fakeStore is an in-memory credstore.Store double. It doesn't model
// encryption; tests that need to assert AAD-style user isolation belong in
// internal/credstore, not here.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(ctx context.Context, key string, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeStore) SetEX(ctx context.Context, key string, ttlSeconds int, value string) error {
	return s.Set(ctx, key, value, "")
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	// Mirrors Redis: DEL removes whatever value lives at key, string or
	// hash, since both share one keyspace. Our hash fields are namespaced
	// under "hash:"+key+":"+field, so sweep those too.
	prefix := "hash:" + key + ":"
	for k := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.data, k)
		}
	}
	return nil
}

func (s *fakeStore) HSet(ctx context.Context, key string, mapping map[string]string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, _ := s.data["hash:"+key]
	_ = raw
	for k, v := range mapping {
		s.data["hash:"+key+":"+k] = v
	}
	return nil
}

func (s *fakeStore) HGetAll(ctx context.Context, key string, userID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	prefix := "hash:" + key + ":"
	for k, v := range s.data {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = v
		}
	}
	return out, nil
}

var _ credstore.Store = (*fakeStore)(nil)
