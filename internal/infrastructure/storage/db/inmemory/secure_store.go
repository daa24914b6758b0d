package inmemory

import (
	"context"
	"sync"

	"github.com/ssp-wallet/ssp-core/internal/core/ports"
)

type secureStore struct {
	lock   *sync.RWMutex
	values map[string]string
}

// NewSecureStore returns a ports.SecureStore kept in memory.
func NewSecureStore() ports.SecureStore {
	return &secureStore{
		lock:   &sync.RWMutex{},
		values: map[string]string{},
	}
}

func (s *secureStore) Get(_ context.Context, key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.values[key], nil
}

func (s *secureStore) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] = value
	return nil
}

func (s *secureStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.values, key)
	return nil
}

func (s *secureStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values = map[string]string{}
	return nil
}

func (s *secureStore) Close() error {
	return nil
}
