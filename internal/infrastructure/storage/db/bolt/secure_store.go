package dbbolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	bolt "go.etcd.io/bbolt"
)

const dbFile = "secure.db"

var secretsBucket = []byte("secrets")

// ErrNullDatadir ...
var ErrNullDatadir = errors.New("datadir must not be null")

type secureStore struct {
	db *bolt.DB
}

// NewSecureStore opens (or creates if not exists) the bolt store of the
// encrypted key material in datadir.
func NewSecureStore(datadir string) (ports.SecureStore, error) {
	if len(datadir) <= 0 {
		return nil, ErrNullDatadir
	}
	if err := os.MkdirAll(datadir, os.ModeDir|0700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(
		filepath.Join(datadir, dbFile), 0600, &bolt.Options{Timeout: time.Second},
	)
	if err != nil {
		return nil, fmt.Errorf("opening secure store: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(secretsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &secureStore{db}, nil
}

func (s *secureStore) Get(_ context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(secretsBucket).Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

func (s *secureStore) Set(_ context.Context, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Put([]byte(key), []byte(value))
	})
}

func (s *secureStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Delete([]byte(key))
	})
}

func (s *secureStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(secretsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(secretsBucket)
		return err
	})
}

func (s *secureStore) Close() error {
	return s.db.Close()
}
