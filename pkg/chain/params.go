package chain

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

// Params renders the spec as btcd network parameters so btcutil helpers
// (bech32 addresses, WIF) can be reused. Two-byte address prefixes cannot be
// represented there and are handled by the callers.
func (s Spec) Params() *chaincfg.Params {
	params := &chaincfg.Params{
		Name:            string(s.Chain),
		Bech32HRPSegwit: s.Bech32HRP,
		PrivateKeyID:    s.WIF,
		HDCoinType:      s.CoinSlip,
	}
	if len(s.PubKeyHash) == 1 {
		params.PubKeyHashAddrID = s.PubKeyHash[0]
	}
	if len(s.ScriptHash) == 1 {
		params.ScriptHashAddrID = s.ScriptHash[0]
	}
	binary.BigEndian.PutUint32(params.HDPrivateKeyID[:], s.Bip32Private)
	binary.BigEndian.PutUint32(params.HDPublicKeyID[:], s.Bip32Public)
	return params
}

// PublicVersion returns the 4 BIP32 version bytes of extended public keys.
func (s Spec) PublicVersion() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, s.Bip32Public)
	return buf
}

// PrivateVersion returns the 4 BIP32 version bytes of extended private keys.
func (s Spec) PrivateVersion() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, s.Bip32Private)
	return buf
}

// FormatAmount renders an amount expressed in base units (satoshis, wei) as
// a decimal string in coin units. Invalid amounts render as "0".
func (s Spec) FormatAmount(baseUnits string) string {
	amount, err := decimal.NewFromString(baseUnits)
	if err != nil {
		return "0"
	}
	return amount.Shift(-s.Decimals).String()
}
