package dbbadger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

// cacheEntry is the record stored for every cache key. Value holds the JSON
// serialization of the cached value.
type cacheEntry struct {
	Value []byte
}

// cache is the badger implementation of ports.Cache.
type cache struct {
	store *badgerhold.Store
}

// NewCache opens (or creates if not exists) the badger cache in dbDir. An
// empty dbDir opens an in-memory badger instance.
func NewCache(dbDir string, logger badger.Logger) (ports.Cache, error) {
	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	return &cache{store}, nil
}

func (c *cache) Get(
	_ context.Context, key string, value interface{},
) (bool, error) {
	var entry cacheEntry
	if err := c.store.Get(key, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(entry.Value, value); err != nil {
		return false, fmt.Errorf("decoding cached value of %s: %w", key, err)
	}
	return true, nil
}

func (c *cache) Set(_ context.Context, key string, value interface{}) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value of %s: %w", key, err)
	}
	return c.store.Upsert(key, cacheEntry{buf})
}

func (c *cache) Delete(_ context.Context, key string) error {
	if err := c.store.Delete(key, cacheEntry{}); err != nil &&
		!errors.Is(err, badgerhold.ErrNotFound) {
		return err
	}
	return nil
}

func (c *cache) Clear(_ context.Context) error {
	return c.store.Badger().DropAll()
}

func (c *cache) Close() error {
	return c.store.Close()
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	_, err := buff.Write(data)
	if err != nil {
		return err
	}

	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	var opts badger.Options
	if len(dbDir) <= 0 {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dbDir)
		opts.Compression = options.ZSTD
	}
	opts.Logger = logger

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
