package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// **** Relay ****

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) PostAction(
	ctx context.Context, req ports.AuthorizedActionRequest,
) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// **** SecureStore ****

// countingStore wraps a SecureStore and counts the writes of every key. An
// optional delay slows down reads to widen race windows; a delayed read
// fails with the context error if ctx is done first.
type countingStore struct {
	ports.SecureStore

	lock  sync.Mutex
	sets  map[string]int
	delay time.Duration
}

func newCountingStore(store ports.SecureStore, delay time.Duration) *countingStore {
	return &countingStore{
		SecureStore: store,
		sets:        map[string]int{},
		delay:       delay,
	}
}

func (s *countingStore) Get(ctx context.Context, key string) (string, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.SecureStore.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.lock.Lock()
	s.sets[key]++
	s.lock.Unlock()
	return s.SecureStore.Set(ctx, key, value)
}

func (s *countingStore) setCount(key string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sets[key]
}
