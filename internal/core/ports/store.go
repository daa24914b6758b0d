package ports

import (
	"context"
	"errors"
)

// ErrStoreLocked is returned by a SecureStore accessed before Unlock.
var ErrStoreLocked = errors.New("secure store is locked")

// SecureStore persists the encrypted key material of the wallet. Values are
// ciphertexts produced by a Cipher, the store never sees plaintext.
type SecureStore interface {
	// Get returns the value stored under key, or an empty string if not found.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key from the store. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every key. Used on wallet reset.
	Clear(ctx context.Context) error
	// Close should be used to gracefully close the connection with the store.
	Close() error
}

// Cipher encrypts and decrypts the values kept in a SecureStore. The
// implementation is bound to the user password.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
