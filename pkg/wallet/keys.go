package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
)

// ExtendedKeyPair is the pair of root extended keys of a chain, encoded with
// the chain's BIP32 version bytes. Xpriv is empty once dropped.
type ExtendedKeyPair struct {
	Xpriv string
	Xpub  string
}

// Zero drops the private half of the pair.
func (p *ExtendedKeyPair) Zero() {
	if p == nil {
		return
	}
	p.Xpriv = ""
}

// DeriveRootKeysOpts is the struct given to DeriveRootKeys method
type DeriveRootKeysOpts struct {
	Seed []byte
	Spec chain.Spec
}

func (o DeriveRootKeysOpts) validate() error {
	if len(o.Seed) <= 0 {
		return ErrNullSeed
	}
	if len(o.Seed) < hdkeychain.MinSeedBytes || len(o.Seed) > hdkeychain.MaxSeedBytes {
		return ErrInvalidSeed
	}
	if _, err := o.Spec.ScriptTypeIndex(); err != nil {
		return err
	}
	return nil
}

// DeriveRootKeys derives the hardened root path m/48'/coinSlip'/0'/scriptType'
// of the given chain from a BIP39 seed
func DeriveRootKeys(opts DeriveRootKeysOpts) (*ExtendedKeyPair, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	path, _ := RootPath(opts.Spec)

	// Derivation runs on mainnet versions so that Neuter can map them, the
	// chain's own versions are applied at encoding time.
	hdNode, err := hdkeychain.NewMaster(opts.Seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	for _, step := range path {
		child, err := hdNode.Derive(step)
		hdNode.Zero()
		if err != nil {
			return nil, err
		}
		hdNode = child
	}
	defer hdNode.Zero()

	xpriv, err := hdNode.CloneWithVersion(opts.Spec.PrivateVersion())
	if err != nil {
		return nil, err
	}
	pub, err := hdNode.Neuter()
	if err != nil {
		return nil, err
	}
	xpub, err := pub.CloneWithVersion(opts.Spec.PublicVersion())
	if err != nil {
		return nil, err
	}

	return &ExtendedKeyPair{
		Xpriv: xpriv.String(),
		Xpub:  xpub.String(),
	}, nil
}

// DeriveRootKeys derives the root extended key pair of the given chain from
// the wallet seed
func (w *Wallet) DeriveRootKeys(spec chain.Spec) (*ExtendedKeyPair, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return DeriveRootKeys(DeriveRootKeysOpts{
		Seed: w.seed,
		Spec: spec,
	})
}

// DeriveChild performs the two non-hardened steps typeIndex/addressIndex
// below a root extended key. The key can be either public or private.
func DeriveChild(
	extendedKey string, typeIndex TypeIndex, addressIndex uint32,
) (*hdkeychain.ExtendedKey, error) {
	if err := checkLeafIndexes(uint32(typeIndex), addressIndex); err != nil {
		return nil, err
	}

	hdNode, err := parseExtendedKey(extendedKey)
	if err != nil {
		return nil, err
	}

	for _, step := range []uint32{uint32(typeIndex), addressIndex} {
		child, err := hdNode.Derive(step)
		hdNode.Zero()
		if err != nil {
			return nil, err
		}
		hdNode = child
	}
	return hdNode, nil
}

// DeriveLeafPublicKey derives the public key at typeIndex/addressIndex below
// the given extended key
func DeriveLeafPublicKey(
	extendedKey string, typeIndex TypeIndex, addressIndex uint32,
) (*btcec.PublicKey, error) {
	hdNode, err := DeriveChild(extendedKey, typeIndex, addressIndex)
	if err != nil {
		return nil, err
	}
	defer hdNode.Zero()

	return hdNode.ECPubKey()
}

// DeriveLeafKeyPair derives the key pair at typeIndex/addressIndex below the
// given extended private key. Callers own the returned private key and must
// Zero it once done.
func DeriveLeafKeyPair(
	xpriv string, typeIndex TypeIndex, addressIndex uint32,
) (*btcec.PrivateKey, *btcec.PublicKey, error) {
	hdNode, err := DeriveChild(xpriv, typeIndex, addressIndex)
	if err != nil {
		return nil, nil, err
	}
	defer hdNode.Zero()

	if !hdNode.IsPrivate() {
		return nil, nil, ErrNotPrivateKey
	}

	privateKey, err := hdNode.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	return privateKey, privateKey.PubKey(), nil
}

// NeuterExtendedKey returns the extended public key of the given extended
// private key, encoded with the chain's public version bytes.
func NeuterExtendedKey(xpriv string, spec chain.Spec) (string, error) {
	hdNode, err := parseExtendedKey(xpriv)
	if err != nil {
		return "", err
	}
	defer hdNode.Zero()

	if !hdNode.IsPrivate() {
		return "", ErrNotPrivateKey
	}

	mainnet, err := hdNode.CloneWithVersion(chaincfg.MainNetParams.HDPrivateKeyID[:])
	if err != nil {
		return "", err
	}
	pub, err := mainnet.Neuter()
	if err != nil {
		return "", err
	}
	xpub, err := pub.CloneWithVersion(spec.PublicVersion())
	if err != nil {
		return "", err
	}
	return xpub.String(), nil
}

// WIFToPrivateKey decodes a WIF encoded private key of the given chain and
// returns it as a 32-byte hex string
func WIFToPrivateKey(wif string, spec chain.Spec) (string, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	if !decoded.IsForNet(spec.Params()) {
		return "", ErrWIFNetworkMismatch
	}
	return hex.EncodeToString(decoded.PrivKey.Serialize()), nil
}

// PrivateKeyToWIF encodes a private key as compressed WIF for the given chain
func PrivateKeyToWIF(privateKey *btcec.PrivateKey, spec chain.Spec) (string, error) {
	if privateKey == nil {
		return "", ErrNullPrivateKey
	}
	wif, err := btcutil.NewWIF(privateKey, spec.Params(), true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

func parseExtendedKey(key string) (*hdkeychain.ExtendedKey, error) {
	hdNode, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExtendedKey, err)
	}
	return hdNode, nil
}
