package wallet

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonicWallet = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testMnemonicKey    = "legal winner thank year wave sausage worth useful legal winner thank yellow"
)

func TestMain(m *testing.M) {
	ScryptN = 1 << 10
	os.Exit(m.Run())
}

func TestNewWallet(t *testing.T) {
	for _, size := range []int{128, 160, 192, 224, 256} {
		w, err := NewWallet(NewWalletOpts{EntropySize: size})
		require.NoError(t, err)

		mnemonic, err := w.Mnemonic()
		require.NoError(t, err)
		assert.Len(t, mnemonic, size/32*3)
		assert.True(t, IsMnemonicValid(mnemonic))
	}
}

func TestFailingNewWallet(t *testing.T) {
	for _, size := range []int{0, -1, 127, 257, 130} {
		_, err := NewWallet(NewWalletOpts{EntropySize: size})
		assert.Equal(t, ErrInvalidEntropySize, err)
	}
}

func TestNewMnemonic(t *testing.T) {
	mnemonic, err := NewMnemonic(NewMnemonicOpts{})
	require.NoError(t, err)
	assert.Len(t, mnemonic, 24)
	assert.True(t, IsMnemonicValid(mnemonic))
}

func TestFailingNewMnemonic(t *testing.T) {
	tests := []int{-1, 127, 257, 130}
	for _, tt := range tests {
		_, err := NewMnemonic(NewMnemonicOpts{EntropySize: tt})
		assert.Equal(t, ErrInvalidEntropySize, err)
	}
}

func TestNewWalletFromMnemonic(t *testing.T) {
	w, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonicWallet,
	})
	require.NoError(t, err)

	mnemonic, err := w.Mnemonic()
	require.NoError(t, err)
	assert.Equal(t, testMnemonicWallet, strings.Join(mnemonic, " "))

	seed, err := w.Seed()
	require.NoError(t, err)
	assert.Len(t, seed, 64)

	withPassphrase, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic:   testMnemonicWallet,
		Passphrase: "TREZOR",
	})
	require.NoError(t, err)
	otherSeed, err := withPassphrase.Seed()
	require.NoError(t, err)
	assert.NotEqual(t, seed, otherSeed)
}

func TestFailingNewWalletFromMnemonic(t *testing.T) {
	tests := []struct {
		mnemonic string
		err      error
	}{
		{"", ErrNullMnemonic},
		{"   ", ErrNullMnemonic},
		{"abandon abandon abandon", ErrInvalidMnemonic},
		{strings.Replace(testMnemonicWallet, "about", "abandon", 1), ErrInvalidMnemonic},
	}
	for _, tt := range tests {
		_, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{Mnemonic: tt.mnemonic})
		assert.Equal(t, tt.err, err)
	}
}

func TestWalletZero(t *testing.T) {
	w := newTestWallet(t, testMnemonicWallet)
	w.Zero()

	_, err := w.Seed()
	assert.Equal(t, ErrNullMnemonic, err)
}

func newTestWallet(t *testing.T, mnemonic string) *Wallet {
	t.Helper()
	w, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{Mnemonic: mnemonic})
	require.NoError(t, err)
	return w
}
