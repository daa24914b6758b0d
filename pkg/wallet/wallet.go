package wallet

import (
	"errors"
	"strings"
)

var (
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic is null")
	// ErrNullSeed ...
	ErrNullSeed = errors.New("seed is null")
	// ErrNullPrivateKey ...
	ErrNullPrivateKey = errors.New("private key is null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullRawTx ...
	ErrNullRawTx = errors.New("raw transaction must not be null")
	// ErrNullMultisigScript ...
	ErrNullMultisigScript = errors.New(
		"redeem script or witness script is required to sign a multisig input",
	)

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidSeed ...
	ErrInvalidSeed = errors.New("seed length must be in the range [16, 64] bytes")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidExtendedKey ...
	ErrInvalidExtendedKey = errors.New("extended key is invalid")
	// ErrInvalidWIF ...
	ErrInvalidWIF = errors.New("private key is not a valid WIF")
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidSignature ...
	ErrInvalidSignature = errors.New("signature is invalid")
	// ErrInvalidMultisigScript ...
	ErrInvalidMultisigScript = errors.New("script is not a 2-of-2 multisig script")

	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrHardenedIndex is returned when a leaf derivation step is asked to
	// derive a hardened index. Leaf steps must be derivable from an xpub.
	ErrHardenedIndex = errors.New("leaf derivation indexes must not be hardened")
	// ErrNotPrivateKey ...
	ErrNotPrivateKey = errors.New("extended key is not a private key")
	// ErrWIFNetworkMismatch ...
	ErrWIFNetworkMismatch = errors.New("WIF does not belong to the given chain")
	// ErrDecryptionFailed is returned when a cypher cannot be opened with the
	// given passphrase, either because the passphrase is wrong or the cypher
	// is corrupted.
	ErrDecryptionFailed = errors.New("unable to decrypt cypher with the given passphrase")
	// ErrUnsupportedTxFormat ...
	ErrUnsupportedTxFormat = errors.New("transaction format not supported for signing")
	// ErrKeyNotInScript ...
	ErrKeyNotInScript = errors.New("signing key is not part of the multisig script")
)

// Wallet holds a BIP39 mnemonic and its seed, the root material every chain's
// extended keys are derived from.
type Wallet struct {
	mnemonic []string
	seed     []byte
}

// NewWalletOpts is the struct given to the NewWallet method
type NewWalletOpts struct {
	EntropySize int
	Passphrase  string
}

func (o NewWalletOpts) validate() error {
	if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewWallet creates a new wallet with a freshly generated mnemonic
func NewWallet(opts NewWalletOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mnemonic, err := generateMnemonic(opts.EntropySize)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		mnemonic: mnemonic,
		seed:     generateSeedFromMnemonic(mnemonic, opts.Passphrase),
	}, nil
}

// NewWalletFromMnemonicOpts is the struct given to the NewWalletFromMnemonic method
type NewWalletFromMnemonicOpts struct {
	Mnemonic   string
	Passphrase string
}

func (o NewWalletFromMnemonicOpts) validate() error {
	if len(strings.TrimSpace(o.Mnemonic)) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(strings.Fields(o.Mnemonic)) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewWalletFromMnemonic generates the seed from the provided mnemonic
func NewWalletFromMnemonic(opts NewWalletFromMnemonicOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mnemonic := strings.Fields(opts.Mnemonic)
	return &Wallet{
		mnemonic: mnemonic,
		seed:     generateSeedFromMnemonic(mnemonic, opts.Passphrase),
	}, nil
}

func (w *Wallet) validate() error {
	if len(w.mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if len(w.seed) <= 0 {
		return ErrNullSeed
	}
	return nil
}

// Mnemonic is getter for the wallet mnemonic
func (w *Wallet) Mnemonic() ([]string, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return append([]string(nil), w.mnemonic...), nil
}

// Seed returns a copy of the BIP39 seed
func (w *Wallet) Seed() ([]byte, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.seed...), nil
}

// Zero wipes the seed and drops the mnemonic. The wallet is unusable after.
func (w *Wallet) Zero() {
	zeroBytes(w.seed)
	w.seed = nil
	w.mnemonic = nil
}
