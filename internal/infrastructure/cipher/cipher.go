// Package cipher implements ports.Cipher with the password based envelope
// of pkg/wallet.
package cipher

import (
	"errors"

	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

// ErrNullPassword ...
var ErrNullPassword = errors.New("password must not be null")

type passwordCipher struct {
	password string
}

// NewCipher returns a cipher bound to the given password.
func NewCipher(password string) (ports.Cipher, error) {
	if len(password) <= 0 {
		return nil, ErrNullPassword
	}
	return &passwordCipher{password}, nil
}

func (c *passwordCipher) Encrypt(plaintext string) (string, error) {
	return wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  plaintext,
		Passphrase: c.password,
	})
}

func (c *passwordCipher) Decrypt(ciphertext string) (string, error) {
	return wallet.Decrypt(wallet.DecryptOpts{
		CypherText: ciphertext,
		Passphrase: c.password,
	})
}
