package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
)

const multisigKeys = 2

// Utxo is a previous output spent by the transaction being signed
type Utxo struct {
	Txid     string
	Vout     uint32
	Satoshis int64
	// Script is the hex encoded output script. Optional.
	Script string
}

func (u Utxo) outpoint() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(u.Txid), u.Vout)
}

// MissingInputValueError is returned when the value of the output spent by
// an input cannot be found in the given utxo set.
type MissingInputValueError struct {
	Index    int
	Outpoint string
}

func (e *MissingInputValueError) Error() string {
	return fmt.Sprintf(
		"value of input %d (%s) not found in utxo set", e.Index, e.Outpoint,
	)
}

// SignTransactionOpts is the struct given to SignTransaction method
type SignTransactionOpts struct {
	RawTx      string
	PrivateKey *btcec.PrivateKey
	// RedeemScript is required for p2sh chains, WitnessScript for p2wsh and
	// p2sh-p2wsh ones. Both are hex encoded.
	RedeemScript  string
	WitnessScript string
	Utxos         []Utxo
	Spec          chain.Spec
	// ConsensusBranchID overrides the one of the spec for zcash format
	// transactions built for another network upgrade.
	ConsensusBranchID uint32
}

func (o SignTransactionOpts) validate() error {
	if len(o.RawTx) <= 0 {
		return ErrNullRawTx
	}
	if o.PrivateKey == nil {
		return ErrNullPrivateKey
	}
	switch o.Spec.TxFormat {
	case chain.TxFormatBitcoin:
	case chain.TxFormatZcash:
		if o.Spec.ScriptType != chain.P2SH {
			return fmt.Errorf(
				"%w: zcash format with %s outputs", ErrUnsupportedTxFormat,
				o.Spec.ScriptType,
			)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTxFormat, o.Spec.TxFormat)
	}
	switch o.Spec.ScriptType {
	case chain.P2SH:
		if len(o.RedeemScript) <= 0 {
			return ErrNullMultisigScript
		}
	case chain.P2SHP2WSH, chain.P2WSH:
		if len(o.WitnessScript) <= 0 {
			return ErrNullMultisigScript
		}
	default:
		return chain.ErrUnknownScriptType
	}
	return nil
}

func (o SignTransactionOpts) branchID() uint32 {
	if o.ConsensusBranchID != 0 {
		return o.ConsensusBranchID
	}
	return o.Spec.ConsensusBranchID
}

// SignTransaction adds the signature of the given private key to every input
// of a transaction spending 2-of-2 multisig outputs. Signatures already
// present are kept in place, the slot of a missing one is filled with an
// empty placeholder. Every input is signed against the value of its previous
// output, looked up in the utxo set.
// Zcash format chains (Flux, Zcash) are signed as transparent sapling
// transactions.
func SignTransaction(opts SignTransactionOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	rawTx, err := hex.DecodeString(opts.RawTx)
	if err != nil {
		return "", fmt.Errorf("invalid raw transaction: %w", err)
	}

	script, err := opts.multisigScript()
	if err != nil {
		return "", err
	}
	keyIndex, err := multisigKeyIndex(script, opts.PrivateKey.PubKey())
	if err != nil {
		return "", err
	}

	if opts.Spec.TxFormat == chain.TxFormatZcash {
		return opts.signZcashTx(rawTx, script, keyIndex)
	}
	return opts.signBitcoinTx(rawTx, script, keyIndex)
}

func (o SignTransactionOpts) signBitcoinTx(
	rawTx, script []byte, keyIndex int,
) (string, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", fmt.Errorf("invalid raw transaction: %w", err)
	}

	prevOuts, err := o.prevOuts(tx, script)
	if err != nil {
		return "", err
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, in := range tx.TxIn {
		prevOut := prevOuts[in.PreviousOutPoint]

		var hash []byte
		if o.Spec.ScriptType == chain.P2SH {
			hash, err = txscript.CalcSignatureHash(script, txscript.SigHashAll, tx, i)
		} else {
			hash, err = txscript.CalcWitnessSigHash(
				script, sigHashes, txscript.SigHashAll, tx, i, prevOut.Value,
			)
		}
		if err != nil {
			return "", err
		}
		if err := o.signInput(tx, i, hash, script, keyIndex); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (o SignTransactionOpts) signZcashTx(
	rawTx, script []byte, keyIndex int,
) (string, error) {
	tx, err := deserializeZcashTx(rawTx)
	if err != nil {
		return "", fmt.Errorf("invalid raw transaction: %w", err)
	}

	prevOuts, err := o.prevOuts(tx.MsgTx, script)
	if err != nil {
		return "", err
	}

	for i, in := range tx.TxIn {
		prevOut := prevOuts[in.PreviousOutPoint]
		hash, err := tx.signatureHash(script, i, prevOut.Value, o.branchID())
		if err != nil {
			return "", err
		}
		if err := o.signInput(tx.MsgTx, i, hash, script, keyIndex); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(tx.serialize()), nil
}

func (o SignTransactionOpts) signInput(
	tx *wire.MsgTx, index int, hash, script []byte, keyIndex int,
) error {
	signature := ecdsa.Sign(o.PrivateKey, hash)
	if !signature.Verify(hash, o.PrivateKey.PubKey()) {
		return fmt.Errorf("signature verification failed for input %d", index)
	}
	sig := append(signature.Serialize(), byte(txscript.SigHashAll))

	if err := o.finalizeInput(tx, index, script, keyIndex, sig); err != nil {
		return fmt.Errorf("input %d: %w", index, err)
	}
	return nil
}

// multisigKeyIndex returns the position of pubkey in the multisig script.
func multisigKeyIndex(script []byte, pubkey *btcec.PublicKey) (int, error) {
	pubkeys, err := ParseMultisigScript(script)
	if err != nil {
		return -1, err
	}
	for i, pk := range pubkeys {
		if bytes.Equal(pk, pubkey.SerializeCompressed()) {
			return i, nil
		}
	}
	return -1, ErrKeyNotInScript
}

func (o SignTransactionOpts) multisigScript() ([]byte, error) {
	s := o.WitnessScript
	if o.Spec.ScriptType == chain.P2SH {
		s = o.RedeemScript
	}
	script, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMultisigScript, err)
	}
	return script, nil
}

// prevOuts maps every input to the output it spends. The output script is
// rebuilt from the multisig script when the utxo does not carry it.
func (o SignTransactionOpts) prevOuts(
	tx *wire.MsgTx, script []byte,
) (map[wire.OutPoint]*wire.TxOut, error) {
	utxos := make(map[string]Utxo, len(o.Utxos))
	for _, u := range o.Utxos {
		utxos[u.outpoint()] = u
	}

	defaultPkScript, err := outputScript(o.Spec.ScriptType, script)
	if err != nil {
		return nil, err
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	for i, in := range tx.TxIn {
		outpoint := in.PreviousOutPoint.String()
		u, ok := utxos[outpoint]
		if !ok {
			return nil, &MissingInputValueError{Index: i, Outpoint: outpoint}
		}
		pkScript := defaultPkScript
		if len(u.Script) > 0 {
			if pkScript, err = hex.DecodeString(u.Script); err != nil {
				return nil, fmt.Errorf("invalid script for utxo %s: %w", outpoint, err)
			}
		}
		prevOuts[in.PreviousOutPoint] = wire.NewTxOut(u.Satoshis, pkScript)
	}
	return prevOuts, nil
}

func (o SignTransactionOpts) finalizeInput(
	tx *wire.MsgTx, index int, script []byte, keyIndex int, sig []byte,
) error {
	in := tx.TxIn[index]

	var existing [][]byte
	switch o.Spec.ScriptType {
	case chain.P2SH:
		if len(in.SignatureScript) > 0 {
			pushes, err := scriptPushes(in.SignatureScript)
			if err != nil {
				return err
			}
			existing = pushes
		}
	default:
		existing = in.Witness
	}

	sigs := make([][]byte, multisigKeys)
	// A complete input carries the dummy element, the signatures and the
	// multisig script.
	if len(existing) == multisigKeys+2 {
		copy(sigs, existing[1:1+multisigKeys])
	}
	sigs[keyIndex] = sig

	switch o.Spec.ScriptType {
	case chain.P2SH:
		builder := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
		for _, s := range sigs {
			builder.AddData(s)
		}
		sigScript, err := builder.AddData(script).Script()
		if err != nil {
			return err
		}
		in.SignatureScript = sigScript
	case chain.P2SHP2WSH:
		redeemScript, err := witnessScriptHash(script)
		if err != nil {
			return err
		}
		sigScript, err := txscript.NewScriptBuilder().AddData(redeemScript).Script()
		if err != nil {
			return err
		}
		in.SignatureScript = sigScript
		in.Witness = multisigWitness(sigs, script)
	case chain.P2WSH:
		in.Witness = multisigWitness(sigs, script)
	}
	return nil
}

func multisigWitness(sigs [][]byte, script []byte) wire.TxWitness {
	witness := wire.TxWitness{nil}
	for _, s := range sigs {
		witness = append(witness, s)
	}
	return append(witness, script)
}

// ParseMultisigScript returns the public keys of a 2-of-2 multisig script
// OP_2 <pk1> <pk2> OP_2 OP_CHECKMULTISIG
func ParseMultisigScript(script []byte) ([][]byte, error) {
	pubkeys := make([][]byte, 0, multisigKeys)
	ops := make([]byte, 0, 5)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		ops = append(ops, tokenizer.Opcode())
		if data := tokenizer.Data(); data != nil {
			if _, err := btcec.ParsePubKey(data); err != nil {
				return nil, ErrInvalidMultisigScript
			}
			pubkeys = append(pubkeys, data)
		}
	}
	if tokenizer.Err() != nil {
		return nil, ErrInvalidMultisigScript
	}
	if len(ops) != 5 || len(pubkeys) != multisigKeys ||
		ops[0] != txscript.OP_2 || ops[3] != txscript.OP_2 ||
		ops[4] != txscript.OP_CHECKMULTISIG {
		return nil, ErrInvalidMultisigScript
	}
	return pubkeys, nil
}

// witnessScriptHash returns the segwit v0 program OP_0 <sha256(script)>
func witnessScriptHash(script []byte) ([]byte, error) {
	h := sha256Sum(script)
	return txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(h).Script()
}

func outputScript(scriptType chain.ScriptType, script []byte) ([]byte, error) {
	switch scriptType {
	case chain.P2SH:
		return scriptHashOutput(script)
	case chain.P2SHP2WSH:
		redeemScript, err := witnessScriptHash(script)
		if err != nil {
			return nil, err
		}
		return scriptHashOutput(redeemScript)
	case chain.P2WSH:
		return witnessScriptHash(script)
	default:
		return nil, chain.ErrUnknownScriptType
	}
}

func scriptHashOutput(script []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash160(script)).
		AddOp(txscript.OP_EQUAL).
		Script()
}
