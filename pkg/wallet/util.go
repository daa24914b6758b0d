package wallet

import (
	"crypto/sha256"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bip39"
)

func generateMnemonic(entropySize int) ([]string, error) {
	entropy, err := bip39.NewEntropy(entropySize)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}

func generateSeedFromMnemonic(mnemonic []string, passphrase string) []byte {
	m := strings.Join(mnemonic, " ")
	return bip39.NewSeed(m, passphrase)
}

func isMnemonicValid(mnemonic []string) bool {
	if len(mnemonic) <= 0 {
		return false
	}
	m := strings.Join(mnemonic, " ")
	return bip39.IsMnemonicValid(m)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// scriptPushes returns the data pushed by a push-only script in order. OP_0
// yields an empty element.
func scriptPushes(script []byte) ([][]byte, error) {
	pushes := make([][]byte, 0)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if tokenizer.Opcode() > txscript.OP_16 {
			return nil, ErrInvalidSignature
		}
		pushes = append(pushes, tokenizer.Data())
	}
	if err := tokenizer.Err(); err != nil {
		return nil, err
	}
	return pushes, nil
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func hash160(b []byte) []byte {
	return btcutil.Hash160(b)
}
