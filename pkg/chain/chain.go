// Package chain holds the static per-chain parameters every other component
// of the wallet core consumes. The registry is compiled into the binary and
// never mutated at runtime.
package chain

import (
	"errors"
	"fmt"
)

// Chain identifies a supported blockchain.
type Chain string

const (
	Flux        Chain = "flux"
	FluxTestnet Chain = "fluxTestnet"
	Ravencoin   Chain = "rvn"
	Litecoin    Chain = "ltc"
	Bitcoin     Chain = "btc"
	Dogecoin    Chain = "doge"
	Zcash       Chain = "zec"
	BtcTestnet  Chain = "btcTestnet"
	BtcSignet   Chain = "btcSignet"

	Ethereum Chain = "eth"
	Sepolia  Chain = "sepolia"
	Polygon  Chain = "polygon"
	Amoy     Chain = "amoy"
	Base     Chain = "base"
	BSC      Chain = "bsc"
	Avax     Chain = "avax"

	// IdentityChain is the chain whose identity-index multisig address is used
	// as the wallet's relay identity.
	IdentityChain = Bitcoin
)

// Type distinguishes UTXO script chains from EVM account chains.
type Type string

const (
	UTXO Type = "utxo"
	EVM  Type = "evm"
)

// ScriptType is the multisig output flavour used on UTXO chains.
type ScriptType string

const (
	P2SH      ScriptType = "p2sh"
	P2SHP2WSH ScriptType = "p2sh-p2wsh"
	P2WSH     ScriptType = "p2wsh"
)

// TxFormat is the raw transaction serialization a chain uses.
type TxFormat string

const (
	TxFormatBitcoin TxFormat = "bitcoin"
	TxFormatZcash   TxFormat = "zcash"
	TxFormatEVM     TxFormat = "evm"
)

var (
	// ErrChainNotFound is the sentinel matched by every *NotFoundError.
	ErrChainNotFound = errors.New("chain not found in registry")
	// ErrUnknownScriptType ...
	ErrUnknownScriptType = errors.New("unknown script type")
)

// NotFoundError is returned for a chain identifier missing from the registry.
type NotFoundError struct {
	Chain Chain
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrChainNotFound, string(e.Chain))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrChainNotFound
}

// AccountAbstraction holds the ERC-4337 deployment the smart accounts of an
// EVM chain are created through.
type AccountAbstraction struct {
	FactoryAddress        string
	EntryPointAddress     string
	AccountImplementation string
	Salt                  string
}

// Spec is the immutable parameter set of a chain.
type Spec struct {
	Chain         Chain
	Name          string
	Type          Type
	Bip32Public   uint32
	Bip32Private  uint32
	CoinSlip      uint32
	ScriptType    ScriptType
	MessagePrefix string
	// PubKeyHash and ScriptHash are the base58 address version bytes. Zcash
	// family chains use two bytes.
	PubKeyHash []byte
	ScriptHash []byte
	WIF        byte
	Bech32HRP  string
	Decimals   int32
	TxFormat   TxFormat
	// ConsensusBranchID commits zcash format signatures to a network
	// upgrade. Zero for every other format.
	ConsensusBranchID uint32
	// ChainID is set for EVM chains only.
	ChainID            uint64
	AccountAbstraction *AccountAbstraction
}

// IsEVM returns whether the chain is an account-abstraction EVM chain.
func (s Spec) IsEVM() bool {
	return s.Type == EVM
}

// IsUTXO returns whether the chain is a UTXO script chain.
func (s Spec) IsUTXO() bool {
	return s.Type == UTXO
}

// ScriptTypeIndex returns the BIP48 script type index of the chain.
func (s Spec) ScriptTypeIndex() (uint32, error) {
	return ScriptTypeIndex(s.ScriptType)
}

// ScriptTypeIndex maps a script type to its BIP48 index.
func ScriptTypeIndex(st ScriptType) (uint32, error) {
	switch st {
	case P2SH:
		return 0, nil
	case P2SHP2WSH:
		return 1, nil
	case P2WSH:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScriptType, string(st))
	}
}

// Get returns the spec of the given chain.
func Get(c Chain) (Spec, error) {
	spec, ok := registry[c]
	if !ok {
		return Spec{}, &NotFoundError{c}
	}
	return spec, nil
}

// MustGet is like Get but panics for unknown chains. Use only with the
// constants declared in this package.
func MustGet(c Chain) Spec {
	spec, err := Get(c)
	if err != nil {
		panic(err)
	}
	return spec
}

// Parse validates a raw chain identifier against the registry.
func Parse(raw string) (Chain, error) {
	c := Chain(raw)
	if _, ok := registry[c]; !ok {
		return "", &NotFoundError{c}
	}
	return c, nil
}

// All returns every supported chain in a stable order.
func All() []Chain {
	list := make([]Chain, len(ordered))
	copy(list, ordered)
	return list
}
