package multisig

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mnemonicWallet = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	mnemonicKey    = "legal winner thank year wave sausage worth useful legal winner thank yellow"
)

func TestBuildUtxoMultisig(t *testing.T) {
	tests := []struct {
		chain         chain.Chain
		addressPrefix string
		redeemScript  bool
		witnessScript bool
	}{
		{chain.Flux, "t3", true, false},
		{chain.Ravencoin, "r", true, false},
		{chain.Bitcoin, "bc1q", false, true},
		{chain.Litecoin, "ltc1q", false, true},
		{chain.BtcTestnet, "tb1q", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.chain), func(t *testing.T) {
			spec := chain.MustGet(tt.chain)
			xpubWallet, xpubKey := testXpubs(t, spec)

			opts := BuildUtxoMultisigOpts{
				XpubA:        xpubWallet,
				XpubB:        xpubKey,
				TypeIndex:    wallet.Receive,
				AddressIndex: 1,
				Spec:         spec,
			}
			descriptor, err := BuildUtxoMultisig(opts)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(descriptor.Address, tt.addressPrefix))
			assert.Equal(t, tt.redeemScript, descriptor.RedeemScript != "")
			assert.Equal(t, tt.witnessScript, descriptor.WitnessScript != "")

			again, err := BuildUtxoMultisig(opts)
			require.NoError(t, err)
			assert.Equal(t, descriptor, again)

			opts.XpubA, opts.XpubB = opts.XpubB, opts.XpubA
			swapped, err := BuildUtxoMultisig(opts)
			require.NoError(t, err)
			assert.Equal(t, descriptor, swapped)
		})
	}
}

func TestBuildUtxoMultisigP2SHP2WSH(t *testing.T) {
	spec := chain.MustGet(chain.BtcTestnet)
	spec.ScriptType = chain.P2SHP2WSH
	xpubWallet, xpubKey := testXpubs(t, spec)

	descriptor, err := BuildUtxoMultisig(BuildUtxoMultisigOpts{
		XpubA:        xpubWallet,
		XpubB:        xpubKey,
		TypeIndex:    wallet.Change,
		AddressIndex: 3,
		Spec:         spec,
	})
	require.NoError(t, err)

	witnessScript, _ := hex.DecodeString(descriptor.WitnessScript)
	redeemScript, _ := hex.DecodeString(descriptor.RedeemScript)
	program, err := witnessProgram(witnessScript)
	require.NoError(t, err)
	assert.Equal(t, program, redeemScript)

	address, err := btcutil.NewAddressScriptHash(redeemScript, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	assert.Equal(t, address.EncodeAddress(), descriptor.Address)
}

// Receive address 0-1 of the fixed mnemonics.
func TestBuildUtxoMultisigVectors(t *testing.T) {
	tests := []struct {
		chain         chain.Chain
		address       string
		redeemScript  string
		witnessScript string
	}{
		{
			chain:        chain.Flux,
			address:      "t3Lb1R5cHfrhF9kxZicdLQKvFL1xPC3GJmg",
			redeemScript: "5221027c51a6f0c0b038e0cd52c4f59344bcdb7ef5513bbb9a9f336006fe7c016f8e7421038b2fb1d4964741340a90e3c1a1d4ec5ab12f2b4c01dc5c4b74f8ab2279eb752f52ae",
		},
		{
			chain:         chain.Bitcoin,
			address:       "bc1qpy5z3lscprjr2me2hr3f8whyckwhtk6v32wd25aqmg8faf5ckhys8m47cg",
			witnessScript: "5221020555b91e0fe9cb299167abab8636d8c997f006380a00a70113ecacac3eb3173d210310a37bad645469dc90258e8c9b9c3707dc538958424135635c1c2f70203bd16752ae",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.chain), func(t *testing.T) {
			spec := chain.MustGet(tt.chain)
			xpubWallet, xpubKey := testXpubs(t, spec)

			descriptor, err := BuildUtxoMultisig(BuildUtxoMultisigOpts{
				XpubA:        xpubWallet,
				XpubB:        xpubKey,
				TypeIndex:    wallet.Receive,
				AddressIndex: 1,
				Spec:         spec,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.address, descriptor.Address)
			assert.Equal(t, tt.redeemScript, descriptor.RedeemScript)
			assert.Equal(t, tt.witnessScript, descriptor.WitnessScript)
		})
	}
}

func TestBuildUtxoMultisigIndexGaps(t *testing.T) {
	spec := chain.MustGet(chain.Bitcoin)
	xpubWallet, xpubKey := testXpubs(t, spec)

	build := func(typeIndex wallet.TypeIndex, addressIndex uint32) *Descriptor {
		d, err := BuildUtxoMultisig(BuildUtxoMultisigOpts{
			XpubA:        xpubWallet,
			XpubB:        xpubKey,
			TypeIndex:    typeIndex,
			AddressIndex: addressIndex,
			Spec:         spec,
		})
		require.NoError(t, err)
		return d
	}

	skipped := build(wallet.Receive, 17)
	for i := uint32(0); i < 5; i++ {
		build(wallet.Receive, i)
	}
	assert.Equal(t, skipped, build(wallet.Receive, 17))
	assert.NotEqual(t, skipped, build(wallet.Receive, 16))
	assert.NotEqual(t, build(wallet.Receive, 0), build(wallet.Change, 0))
	assert.NotEqual(t, build(wallet.Receive, 0), build(wallet.Identity, 0))
}

func TestFailingBuildUtxoMultisig(t *testing.T) {
	spec := chain.MustGet(chain.Bitcoin)
	xpubWallet, xpubKey := testXpubs(t, spec)

	noHRP := spec
	noHRP.Bech32HRP = ""
	badScript := spec
	badScript.ScriptType = "p2tr"

	tests := []struct {
		name string
		opts BuildUtxoMultisigOpts
		err  error
	}{
		{"missing_xpub", BuildUtxoMultisigOpts{XpubA: xpubWallet, Spec: spec}, ErrNullXpub},
		{"evm_chain", BuildUtxoMultisigOpts{XpubA: xpubWallet, XpubB: xpubKey, Spec: chain.MustGet(chain.Ethereum)}, ErrNotUTXOChain},
		{"invalid_xpub", BuildUtxoMultisigOpts{XpubA: "xpub", XpubB: xpubKey, Spec: spec}, wallet.ErrInvalidExtendedKey},
		{"hardened_index", BuildUtxoMultisigOpts{XpubA: xpubWallet, XpubB: xpubKey, AddressIndex: hdkeychain.HardenedKeyStart, Spec: spec}, wallet.ErrHardenedIndex},
		{"missing_hrp", BuildUtxoMultisigOpts{XpubA: xpubWallet, XpubB: xpubKey, Spec: noHRP}, ErrMissingBech32HRP},
		{"unknown_script_type", BuildUtxoMultisigOpts{XpubA: xpubWallet, XpubB: xpubKey, Spec: badScript}, chain.ErrUnknownScriptType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildUtxoMultisig(tt.opts)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func testXpubs(t *testing.T, spec chain.Spec) (string, string) {
	t.Helper()
	xpubs := make([]string, 0, 2)
	for _, mnemonic := range []string{mnemonicWallet, mnemonicKey} {
		w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
			Mnemonic: mnemonic,
		})
		require.NoError(t, err)
		keys, err := w.DeriveRootKeys(spec)
		require.NoError(t, err)
		xpubs = append(xpubs, keys.Xpub)
	}
	return xpubs[0], xpubs[1]
}
