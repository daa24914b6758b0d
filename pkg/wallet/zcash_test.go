package wallet

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xblake2b "golang.org/x/crypto/blake2b"
)

const unsignedSaplingTx = "04000080" + "85202f89" +
	"01" + "1111111111111111111111111111111111111111111111111111111111111111" +
	"00000000" + "00" + "ffffffff" +
	"01" + "a086010000000000" +
	"17" + "a914" + "2222222222222222222222222222222222222222" + "87" +
	"00000000" + "10270000" + "0000000000000000" + "000000"

func TestZcashTxSerialization(t *testing.T) {
	raw, err := hex.DecodeString(unsignedSaplingTx)
	require.NoError(t, err)

	tx, err := deserializeZcashTx(raw)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 1)
	assert.Equal(t, int32(saplingTxVersion), tx.Version)
	assert.Equal(t, saplingVersionGroupID, tx.versionGroupID)
	assert.Equal(t, uint32(10000), tx.expiryHeight)
	assert.Equal(t, int64(100000), tx.TxOut[0].Value)
	assert.Equal(t, uint32(0xffffffff), tx.TxIn[0].Sequence)

	assert.Equal(t, unsignedSaplingTx, hex.EncodeToString(tx.serialize()))
}

func TestFailingZcashTxDeserialization(t *testing.T) {
	tests := []struct {
		name  string
		rawTx string
	}{
		{
			name:  "overwinter_version",
			rawTx: "03000080" + unsignedSaplingTx[8:],
		},
		{
			name:  "legacy_version",
			rawTx: "04000000" + unsignedSaplingTx[8:],
		},
		{
			name:  "unknown_version_group",
			rawTx: unsignedSaplingTx[:8] + "70821c03" + unsignedSaplingTx[16:],
		},
		{
			name:  "shielded_spends",
			rawTx: strings.TrimSuffix(unsignedSaplingTx, "000000") + "010000",
		},
		{
			name:  "joinsplits",
			rawTx: strings.TrimSuffix(unsignedSaplingTx, "000000") + "000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tt.rawTx)
			require.NoError(t, err)
			_, err = deserializeZcashTx(raw)
			require.ErrorIs(t, err, ErrUnsupportedZcashTx)
		})
	}

	t.Run("trailing_bytes", func(t *testing.T) {
		raw, err := hex.DecodeString(unsignedSaplingTx + "00")
		require.NoError(t, err)
		_, err = deserializeZcashTx(raw)
		require.Error(t, err)
	})
}

func TestBlake2bPersonalization(t *testing.T) {
	for _, size := range []int{0, 1, 128, 129, 300} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i)
		}

		plain, err := blake2b256(nil, data)
		require.NoError(t, err)
		expected := xblake2b.Sum256(data)
		require.Equal(t, expected[:], plain)

		personal, err := blake2b256(sigHashPersonal, data)
		require.NoError(t, err)
		require.NotEqual(t, plain, personal)
	}
}

func TestZcashSignatureHash(t *testing.T) {
	raw, err := hex.DecodeString(unsignedSaplingTx)
	require.NoError(t, err)
	tx, err := deserializeZcashTx(raw)
	require.NoError(t, err)
	script := tx.TxOut[0].PkScript

	sapling, err := tx.signatureHash(script, 0, 100000, 0x76b809bb)
	require.NoError(t, err)
	require.Len(t, sapling, chainhash.HashSize)

	nu6, err := tx.signatureHash(script, 0, 100000, 0xc8e71055)
	require.NoError(t, err)
	require.NotEqual(t, sapling, nu6)

	otherAmount, err := tx.signatureHash(script, 0, 100001, 0x76b809bb)
	require.NoError(t, err)
	require.NotEqual(t, sapling, otherAmount)

	_, err = tx.signatureHash(script, 1, 100000, 0x76b809bb)
	require.Error(t, err)
}

func TestSignZcashTransaction(t *testing.T) {
	for _, c := range []chain.Chain{chain.Flux, chain.Zcash} {
		spec := chain.MustGet(c)
		t.Run(string(c), func(t *testing.T) {
			walletKey, keyKey := newTestSigners(t, spec)
			script := newTestMultisigScript(t, walletKey.PubKey(), keyKey.PubKey())
			pkScript, err := outputScript(spec.ScriptType, script)
			require.NoError(t, err)

			tx, utxos := newTestZcashSpendingTx(pkScript, 2)
			opts := SignTransactionOpts{
				RawTx:        hex.EncodeToString(tx.serialize()),
				PrivateKey:   walletKey,
				RedeemScript: hex.EncodeToString(script),
				Utxos:        utxos,
				Spec:         spec,
			}

			partial, err := SignTransaction(opts)
			require.NoError(t, err)

			opts.RawTx = partial
			opts.PrivateKey = keyKey
			signed, err := SignTransaction(opts)
			require.NoError(t, err)
			verifyZcashTx(
				t, signed, script, utxos, spec.ConsensusBranchID,
				walletKey.PubKey(), keyKey.PubKey(),
			)

			// Signing again with the same key keeps the counterparty signature.
			opts.RawTx = signed
			opts.PrivateKey = walletKey
			resigned, err := SignTransaction(opts)
			require.NoError(t, err)
			verifyZcashTx(
				t, resigned, script, utxos, spec.ConsensusBranchID,
				walletKey.PubKey(), keyKey.PubKey(),
			)

			// Signatures commit to the consensus branch id.
			opts.ConsensusBranchID = 0x5ba81b19
			otherBranch, err := SignTransaction(opts)
			require.NoError(t, err)
			require.NotEqual(t, resigned, otherBranch)
		})
	}
}

func TestFailingSignZcashTransaction(t *testing.T) {
	spec := chain.MustGet(chain.Flux)
	walletKey, keyKey := newTestSigners(t, spec)
	script := newTestMultisigScript(t, walletKey.PubKey(), keyKey.PubKey())
	pkScript, err := outputScript(spec.ScriptType, script)
	require.NoError(t, err)
	tx, utxos := newTestZcashSpendingTx(pkScript, 2)

	t.Run("missing_input_value", func(t *testing.T) {
		_, err := SignTransaction(SignTransactionOpts{
			RawTx:        hex.EncodeToString(tx.serialize()),
			PrivateKey:   walletKey,
			RedeemScript: hex.EncodeToString(script),
			Utxos:        utxos[1:],
			Spec:         spec,
		})
		var missing *MissingInputValueError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, 0, missing.Index)
	})

	t.Run("bitcoin_serialization", func(t *testing.T) {
		btcTx, btcUtxos := newTestSpendingTx(t, pkScript, 1)
		_, err := SignTransaction(SignTransactionOpts{
			RawTx:        serializeTx(t, btcTx),
			PrivateKey:   walletKey,
			RedeemScript: hex.EncodeToString(script),
			Utxos:        btcUtxos,
			Spec:         spec,
		})
		require.ErrorIs(t, err, ErrUnsupportedZcashTx)
	})

	t.Run("segwit_script_type", func(t *testing.T) {
		_, err := SignTransaction(SignTransactionOpts{
			RawTx:         hex.EncodeToString(tx.serialize()),
			PrivateKey:    walletKey,
			WitnessScript: hex.EncodeToString(script),
			Utxos:         utxos,
			Spec:          withScriptType(spec, chain.P2WSH),
		})
		require.ErrorIs(t, err, ErrUnsupportedTxFormat)
	})
}

func newTestZcashSpendingTx(pkScript []byte, numInputs int) (*zcashTx, []Utxo) {
	tx := &zcashTx{
		MsgTx:          wire.NewMsgTx(saplingTxVersion),
		versionGroupID: saplingVersionGroupID,
		expiryHeight:   1500000,
	}
	utxos := make([]Utxo, 0, numInputs)
	for i := 0; i < numInputs; i++ {
		hash := chainhash.DoubleHashH([]byte{byte(i), 0x5a})
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&hash, uint32(i)), nil, nil))
		utxos = append(utxos, Utxo{
			Txid:     hash.String(),
			Vout:     uint32(i),
			Satoshis: int64(100000 * (i + 1)),
		})
	}
	tx.AddTxOut(wire.NewTxOut(250000, pkScript))
	return tx, utxos
}

// verifyZcashTx checks that every input of rawTx carries both multisig
// signatures in script order, each valid for the input's sighash.
func verifyZcashTx(
	t *testing.T, rawTx string, script []byte, utxos []Utxo, branchID uint32,
	pubkeys ...*btcec.PublicKey,
) {
	t.Helper()
	raw, err := hex.DecodeString(rawTx)
	require.NoError(t, err)
	tx, err := deserializeZcashTx(raw)
	require.NoError(t, err)

	scriptKeys, err := ParseMultisigScript(script)
	require.NoError(t, err)
	byKey := make(map[string]*btcec.PublicKey, len(pubkeys))
	for _, pk := range pubkeys {
		byKey[hex.EncodeToString(pk.SerializeCompressed())] = pk
	}

	for i, in := range tx.TxIn {
		pushes, err := txscript.PushedData(in.SignatureScript)
		require.NoError(t, err)
		require.Len(t, pushes, multisigKeys+2)
		require.Empty(t, pushes[0])
		require.Equal(t, script, pushes[len(pushes)-1])

		hash, err := tx.signatureHash(script, i, utxos[i].Satoshis, branchID)
		require.NoError(t, err)

		for j, sig := range pushes[1 : 1+multisigKeys] {
			require.NotEmpty(t, sig)
			require.Equal(t, byte(txscript.SigHashAll), sig[len(sig)-1])
			signature, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
			require.NoError(t, err)
			pubkey := byKey[hex.EncodeToString(scriptKeys[j])]
			require.NotNil(t, pubkey)
			require.True(t, signature.Verify(hash, pubkey))
		}
	}
}
