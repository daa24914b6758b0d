package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ssp-wallet/ssp-core/internal/core/ports"
)

type cache struct {
	lock   *sync.RWMutex
	values map[string][]byte
}

// NewCache returns a ports.Cache kept in memory. Values are stored JSON
// serialized so that callers never share references with the cache.
func NewCache() ports.Cache {
	return &cache{
		lock:   &sync.RWMutex{},
		values: map[string][]byte{},
	}
}

func (c *cache) Get(
	_ context.Context, key string, value interface{},
) (bool, error) {
	c.lock.RLock()
	buf, ok := c.values[key]
	c.lock.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(buf, value); err != nil {
		return false, fmt.Errorf("decoding cached value of %s: %w", key, err)
	}
	return true, nil
}

func (c *cache) Set(_ context.Context, key string, value interface{}) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value of %s: %w", key, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.values[key] = buf
	return nil
}

func (c *cache) Delete(_ context.Context, key string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.values, key)
	return nil
}

func (c *cache) Clear(_ context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.values = map[string][]byte{}
	return nil
}

func (c *cache) Close() error {
	return nil
}
