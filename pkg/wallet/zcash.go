package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dchest/blake2b"
)

const (
	overwinterFlag        = uint32(1) << 31
	saplingTxVersion      = 4
	saplingVersionGroupID = uint32(0x892f2085)
	maxScriptSize         = 10000
)

var (
	// ErrUnsupportedZcashTx is returned for zcash format transactions that
	// are not transparent sapling (v4) ones.
	ErrUnsupportedZcashTx = errors.New(
		"only transparent sapling (v4) transactions can be signed",
	)

	prevoutsHashPersonal = []byte("ZcashPrevoutHash")
	sequenceHashPersonal = []byte("ZcashSequencHash")
	outputsHashPersonal  = []byte("ZcashOutputsHash")
	sigHashPersonal      = []byte("ZcashSigHash")
)

// zcashTx is a transparent sapling transaction. The embedded MsgTx carries
// inputs, outputs and lock time so the multisig finalization is shared with
// bitcoin format transactions.
type zcashTx struct {
	*wire.MsgTx
	versionGroupID uint32
	expiryHeight   uint32
	valueBalance   int64
}

func deserializeZcashTx(raw []byte) (*zcashTx, error) {
	r := bytes.NewReader(raw)

	header, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if header&overwinterFlag == 0 || header&^overwinterFlag != saplingTxVersion {
		return nil, fmt.Errorf("%w: header %#08x", ErrUnsupportedZcashTx, header)
	}
	versionGroupID, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if versionGroupID != saplingVersionGroupID {
		return nil, fmt.Errorf(
			"%w: version group id %#08x", ErrUnsupportedZcashTx, versionGroupID,
		)
	}

	tx := &zcashTx{
		MsgTx:          wire.NewMsgTx(saplingTxVersion),
		versionGroupID: versionGroupID,
	}

	numIn, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numIn; i++ {
		var hash chainhash.Hash
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, err
		}
		index, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		script, err := wire.ReadVarBytes(r, 0, maxScriptSize, "signature script")
		if err != nil {
			return nil, err
		}
		sequence, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		in := wire.NewTxIn(wire.NewOutPoint(&hash, index), script, nil)
		in.Sequence = sequence
		tx.AddTxIn(in)
	}

	numOut, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numOut; i++ {
		value, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		script, err := wire.ReadVarBytes(r, 0, maxScriptSize, "public key script")
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(value), script))
	}

	if tx.LockTime, err = readUint32(r); err != nil {
		return nil, err
	}
	if tx.expiryHeight, err = readUint32(r); err != nil {
		return nil, err
	}
	valueBalance, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	tx.valueBalance = int64(valueBalance)

	// Shielded spends, shielded outputs and joinsplits.
	for _, bundle := range []string{"spends", "outputs", "joinsplits"} {
		n, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: has shielded %s", ErrUnsupportedZcashTx, bundle)
		}
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%d unexpected trailing bytes", r.Len())
	}
	return tx, nil
}

func (tx *zcashTx) header() uint32 {
	return overwinterFlag | uint32(tx.Version)
}

func (tx *zcashTx) serialize() []byte {
	var buf bytes.Buffer
	writeUint32(&buf, tx.header())
	writeUint32(&buf, tx.versionGroupID)

	_ = wire.WriteVarInt(&buf, 0, uint64(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		writeOutPoint(&buf, in.PreviousOutPoint)
		_ = wire.WriteVarBytes(&buf, 0, in.SignatureScript)
		writeUint32(&buf, in.Sequence)
	}
	_ = wire.WriteVarInt(&buf, 0, uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		writeTxOut(&buf, out)
	}

	writeUint32(&buf, tx.LockTime)
	writeUint32(&buf, tx.expiryHeight)
	writeUint64(&buf, uint64(tx.valueBalance))
	// Empty shielded spends, shielded outputs and joinsplits.
	buf.Write([]byte{0x00, 0x00, 0x00})
	return buf.Bytes()
}

// signatureHash returns the SIGHASH_ALL digest of the input at index
// spending an output of the given amount locked by scriptCode, committed to
// the consensus branch id of the network upgrade.
func (tx *zcashTx) signatureHash(
	scriptCode []byte, index int, amount int64, branchID uint32,
) ([]byte, error) {
	if index < 0 || index >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", index)
	}

	var prevouts, sequences, outputs bytes.Buffer
	for _, in := range tx.TxIn {
		writeOutPoint(&prevouts, in.PreviousOutPoint)
		writeUint32(&sequences, in.Sequence)
	}
	for _, out := range tx.TxOut {
		writeTxOut(&outputs, out)
	}

	var preimage bytes.Buffer
	writeUint32(&preimage, tx.header())
	writeUint32(&preimage, tx.versionGroupID)
	for _, part := range []struct {
		personal []byte
		data     []byte
	}{
		{prevoutsHashPersonal, prevouts.Bytes()},
		{sequenceHashPersonal, sequences.Bytes()},
		{outputsHashPersonal, outputs.Bytes()},
	} {
		h, err := blake2b256(part.personal, part.data)
		if err != nil {
			return nil, err
		}
		preimage.Write(h)
	}
	// Joinsplits, shielded spends and shielded outputs digests.
	preimage.Write(make([]byte, 3*chainhash.HashSize))
	writeUint32(&preimage, tx.LockTime)
	writeUint32(&preimage, tx.expiryHeight)
	writeUint64(&preimage, uint64(tx.valueBalance))
	writeUint32(&preimage, uint32(txscript.SigHashAll))

	in := tx.TxIn[index]
	writeOutPoint(&preimage, in.PreviousOutPoint)
	_ = wire.WriteVarBytes(&preimage, 0, scriptCode)
	writeUint64(&preimage, uint64(amount))
	writeUint32(&preimage, in.Sequence)

	personal := make([]byte, 0, len(sigHashPersonal)+4)
	personal = append(personal, sigHashPersonal...)
	personal = binary.LittleEndian.AppendUint32(personal, branchID)
	return blake2b256(personal, preimage.Bytes())
}

func blake2b256(personal, data []byte) ([]byte, error) {
	h, err := blake2b.New(&blake2b.Config{Size: 32, Person: personal})
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

func writeOutPoint(w *bytes.Buffer, op wire.OutPoint) {
	w.Write(op.Hash[:])
	writeUint32(w, op.Index)
}

func writeTxOut(w *bytes.Buffer, out *wire.TxOut) {
	writeUint64(w, uint64(out.Value))
	_ = wire.WriteVarBytes(w, 0, out.PkScript)
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
