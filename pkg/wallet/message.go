package wallet

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
)

const (
	compactSigSize       = 65
	compactSigMagicBase  = 27
	compactSigCompressed = 4
	extraEntropySize     = 32
	evmRecoveryIDOffset  = 27
)

// MessageHash returns the double sha256 of the chain's message prefix
// followed by the var-length message. EVM chains use the EIP-191 personal
// message hash instead.
func MessageHash(message string, spec chain.Spec) []byte {
	if spec.IsEVM() {
		return accounts.TextHash([]byte(message))
	}
	var buf bytes.Buffer
	buf.WriteString(spec.MessagePrefix)
	_ = wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// SignMessageOpts is the struct given to SignMessage method
type SignMessageOpts struct {
	Message    string
	PrivateKey *btcec.PrivateKey
	Spec       chain.Spec
	// Entropy is the source of the extra data mixed into the nonce. Defaults
	// to crypto/rand.
	Entropy io.Reader
}

func (o SignMessageOpts) validate() error {
	if o.PrivateKey == nil {
		return ErrNullPrivateKey
	}
	return nil
}

// SignMessage signs the message with the chain's message prefix and returns
// the base64 encoded compact recoverable signature. Fresh external entropy is
// mixed into the RFC6979 nonce, hence signing twice the same message yields
// two different, equally valid, signatures.
// On EVM chains the result is the 0x prefixed r||s||v personal_sign
// signature, with v in {27, 28}. Entropy is ignored there.
func SignMessage(opts SignMessageOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	if opts.Spec.IsEVM() {
		return signEvmMessage(opts)
	}
	entropy := opts.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}

	extra := make([]byte, extraEntropySize)
	if _, err := io.ReadFull(entropy, extra); err != nil {
		return "", err
	}

	hash := MessageHash(opts.Message, opts.Spec)
	sig, err := signCompact(opts.PrivateKey, hash, extra)
	if err != nil {
		return "", err
	}

	pubkey, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil || !pubkey.IsEqual(opts.PrivateKey.PubKey()) {
		return "", fmt.Errorf("message signature verification failed")
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyMessageOpts is the struct given to VerifyMessage method
type VerifyMessageOpts struct {
	Message   string
	Signature string
	// PublicKey is the hex encoded compressed public key expected to have
	// produced the signature.
	PublicKey string
	Spec      chain.Spec
}

// VerifyMessage checks that the base64 compact signature, or the hex
// personal_sign one on EVM chains, recovers to the expected public key
func VerifyMessage(opts VerifyMessageOpts) error {
	expected, err := hex.DecodeString(opts.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	expectedKey, err := btcec.ParsePubKey(expected)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if opts.Spec.IsEVM() {
		return verifyEvmMessage(opts, expectedKey)
	}

	sig, err := base64.StdEncoding.DecodeString(opts.Signature)
	if err != nil || len(sig) != compactSigSize {
		return ErrInvalidSignature
	}

	hash := MessageHash(opts.Message, opts.Spec)
	pubkey, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return ErrInvalidSignature
	}
	if !pubkey.IsEqual(expectedKey) {
		return ErrInvalidSignature
	}
	return nil
}

func signEvmMessage(opts SignMessageOpts) (string, error) {
	privKeyBytes := opts.PrivateKey.Serialize()
	defer zeroBytes(privKeyBytes)
	privKey, err := crypto.ToECDSA(privKeyBytes)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(MessageHash(opts.Message, opts.Spec), privKey)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += evmRecoveryIDOffset
	return hexutil.Encode(sig), nil
}

func verifyEvmMessage(opts VerifyMessageOpts, expectedKey *btcec.PublicKey) error {
	sig, err := hexutil.Decode(opts.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= evmRecoveryIDOffset {
		sig[crypto.RecoveryIDOffset] -= evmRecoveryIDOffset
	}

	pubkey, err := crypto.SigToPub(MessageHash(opts.Message, opts.Spec), sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if !bytes.Equal(crypto.CompressPubkey(pubkey), expectedKey.SerializeCompressed()) {
		return ErrInvalidSignature
	}
	return nil
}

// signCompact produces a 65-byte recoverable signature of hash with a
// RFC6979 nonce seeded with extra. The s value is always canonical (low-S).
func signCompact(privKey *btcec.PrivateKey, hash, extra []byte) ([]byte, error) {
	privKeyBytes := privKey.Serialize()
	defer zeroBytes(privKeyBytes)

	var e secp256k1.ModNScalar
	e.SetByteSlice(hash)

	for iteration := uint32(0); ; iteration++ {
		k := secp256k1.NonceRFC6979(privKeyBytes, hash, extra, nil, iteration)

		var bigR secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(k, &bigR)
		bigR.ToAffine()

		var r secp256k1.ModNScalar
		overflow := r.SetBytes(bigR.X.Bytes())
		if r.IsZero() {
			k.Zero()
			continue
		}

		recoveryCode := byte(overflow << 1)
		if bigR.Y.IsOdd() {
			recoveryCode |= 0x01
		}

		kinv := new(secp256k1.ModNScalar).InverseValNonConst(k)
		k.Zero()
		s := new(secp256k1.ModNScalar).Mul2(&privKey.Key, &r).Add(&e).Mul(kinv)
		if s.IsZero() {
			continue
		}
		if s.IsOverHalfOrder() {
			s.Negate()
			recoveryCode ^= 0x01
		}

		sig := make([]byte, compactSigSize)
		sig[0] = compactSigMagicBase + compactSigCompressed + recoveryCode
		r.PutBytesUnchecked(sig[1:33])
		s.PutBytesUnchecked(sig[33:65])
		return sig, nil
	}
}
