// Package multisig builds the 2-of-2 addresses shared by the wallet and key
// devices out of their extended public keys.
package multisig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

const checksumSize = 4

var (
	// ErrNullXpub ...
	ErrNullXpub = errors.New("both extended public keys are required")
	// ErrNotUTXOChain ...
	ErrNotUTXOChain = errors.New("chain does not use multisig scripts")
	// ErrNotEVMChain ...
	ErrNotEVMChain = errors.New("chain does not use smart accounts")
	// ErrMissingAccountAbstraction ...
	ErrMissingAccountAbstraction = errors.New(
		"chain has no account abstraction deployment",
	)
	// ErrMissingScriptHashPrefix ...
	ErrMissingScriptHashPrefix = errors.New("chain has no script hash address prefix")
	// ErrMissingBech32HRP ...
	ErrMissingBech32HRP = errors.New("chain has no bech32 human readable part")
)

// Descriptor is the address of a 2-of-2 multisig output along with the
// scripts needed to spend it. Scripts are hex encoded and empty when not
// relevant to the chain's script type.
type Descriptor struct {
	Address       string
	RedeemScript  string
	WitnessScript string
}

// BuildUtxoMultisigOpts is the struct given to BuildUtxoMultisig method
type BuildUtxoMultisigOpts struct {
	XpubA        string
	XpubB        string
	TypeIndex    wallet.TypeIndex
	AddressIndex uint32
	Spec         chain.Spec
}

func (o BuildUtxoMultisigOpts) validate() error {
	if len(o.XpubA) <= 0 || len(o.XpubB) <= 0 {
		return ErrNullXpub
	}
	if !o.Spec.IsUTXO() {
		return ErrNotUTXOChain
	}
	return nil
}

// BuildUtxoMultisig derives the leaf public keys of both parties at
// typeIndex/addressIndex and builds the multisig descriptor of the chain's
// script type. The keys are sorted before building the script, hence
// swapping XpubA and XpubB yields the same descriptor.
func BuildUtxoMultisig(opts BuildUtxoMultisigOpts) (*Descriptor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	pubkeys, err := deriveLeafPublicKeys(
		opts.XpubA, opts.XpubB, opts.TypeIndex, opts.AddressIndex,
	)
	if err != nil {
		return nil, err
	}
	script, err := MultisigScript(pubkeys...)
	if err != nil {
		return nil, err
	}

	spec := opts.Spec
	switch spec.ScriptType {
	case chain.P2SH:
		address, err := scriptHashAddress(script, spec)
		if err != nil {
			return nil, err
		}
		return &Descriptor{
			Address:      address,
			RedeemScript: hex.EncodeToString(script),
		}, nil

	case chain.P2SHP2WSH:
		redeemScript, err := witnessProgram(script)
		if err != nil {
			return nil, err
		}
		address, err := scriptHashAddress(redeemScript, spec)
		if err != nil {
			return nil, err
		}
		return &Descriptor{
			Address:       address,
			RedeemScript:  hex.EncodeToString(redeemScript),
			WitnessScript: hex.EncodeToString(script),
		}, nil

	case chain.P2WSH:
		if len(spec.Bech32HRP) <= 0 {
			return nil, ErrMissingBech32HRP
		}
		h := sha256.Sum256(script)
		address, err := btcutil.NewAddressWitnessScriptHash(h[:], spec.Params())
		if err != nil {
			return nil, err
		}
		return &Descriptor{
			Address:       address.EncodeAddress(),
			WitnessScript: hex.EncodeToString(script),
		}, nil

	default:
		return nil, chain.ErrUnknownScriptType
	}
}

// MultisigScript returns OP_2 <pk1> <pk2> OP_2 OP_CHECKMULTISIG with the
// compressed keys sorted in ascending byte order.
func MultisigScript(pubkeys ...*btcec.PublicKey) ([]byte, error) {
	keys := sortedKeys(pubkeys)

	builder := txscript.NewScriptBuilder().AddOp(txscript.OP_2)
	for _, k := range keys {
		builder.AddData(k)
	}
	return builder.
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

func deriveLeafPublicKeys(
	xpubA, xpubB string, typeIndex wallet.TypeIndex, addressIndex uint32,
) ([]*btcec.PublicKey, error) {
	pubkeys := make([]*btcec.PublicKey, 0, 2)
	for _, xpub := range []string{xpubA, xpubB} {
		pubkey, err := wallet.DeriveLeafPublicKey(xpub, typeIndex, addressIndex)
		if err != nil {
			return nil, err
		}
		pubkeys = append(pubkeys, pubkey)
	}
	return pubkeys, nil
}

func sortedKeys(pubkeys []*btcec.PublicKey) [][]byte {
	keys := make([][]byte, 0, len(pubkeys))
	for _, pk := range pubkeys {
		keys = append(keys, pk.SerializeCompressed())
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	return keys
}

// witnessProgram returns the segwit v0 script OP_0 <sha256(script)>.
func witnessProgram(script []byte) ([]byte, error) {
	h := sha256.Sum256(script)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(h[:]).
		Script()
}

// scriptHashAddress base58check encodes hash160(script) with the chain's
// script hash prefix, which is two bytes long on Zcash family chains.
func scriptHashAddress(script []byte, spec chain.Spec) (string, error) {
	if len(spec.ScriptHash) <= 0 {
		return "", ErrMissingScriptHashPrefix
	}
	payload := append(append([]byte{}, spec.ScriptHash...), btcutil.Hash160(script)...)
	checksum := chainhash.DoubleHashB(payload)[:checksumSize]
	return base58.Encode(append(payload, checksum...)), nil
}
