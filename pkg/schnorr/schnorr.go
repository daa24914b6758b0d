// Package schnorr implements the two-party Schnorr multi-signature used by
// the multisig smart accounts on EVM chains. Each party keeps its private key
// and its private nonces; only public keys, public nonces and partial
// signatures are exchanged. The partial signatures are aggregated by the
// verifying contract.
package schnorr

import (
	"bytes"
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Participants is the number of parties of a signing session.
const Participants = 2

var (
	// ErrNullPrivateKey ...
	ErrNullPrivateKey = errors.New("private key must not be null")
	// ErrSessionConsumed is returned when a session is asked to sign twice.
	ErrSessionConsumed = errors.New("signing session already consumed")
	// ErrInvalidParticipants ...
	ErrInvalidParticipants = errors.New(
		"exactly two public keys and two public nonces are required",
	)
	// ErrOwnKeyMissing ...
	ErrOwnKeyMissing = errors.New("own public key not among the signers")
	// ErrOwnNonceMissing ...
	ErrOwnNonceMissing = errors.New("own public nonces not among the given nonces")
	// ErrDuplicatePublicKey ...
	ErrDuplicatePublicKey = errors.New("public keys must be distinct")
	// ErrInvalidNonce ...
	ErrInvalidNonce = errors.New("combined nonce is the point at infinity")
)

// PublicNonces are the public halves of a party's nonce pair.
type PublicNonces struct {
	KPublic    *btcec.PublicKey
	KTwoPublic *btcec.PublicKey
}

// CombinePublicKeys aggregates the signers' public keys into the key the
// contract verifies against: X = sum(a_i * P_i) with
// a_i = keccak256(L || P_i) and L = keccak256(sorted P).
func CombinePublicKeys(publicKeys []*btcec.PublicKey) (*btcec.PublicKey, error) {
	if len(publicKeys) != Participants {
		return nil, ErrInvalidParticipants
	}
	l, err := hashPublicKeys(publicKeys)
	if err != nil {
		return nil, err
	}

	var sum btcec.JacobianPoint
	for _, pk := range publicKeys {
		a := coefficient(l, pk)

		var p, ap, next btcec.JacobianPoint
		pk.AsJacobian(&p)
		btcec.ScalarMultNonConst(a, &p, &ap)
		btcec.AddNonConst(&sum, &ap, &next)
		sum = next
	}
	return toPublicKey(&sum)
}

// Address returns the EVM address of the given public key.
func Address(publicKey *btcec.PublicKey) common.Address {
	return common.BytesToAddress(
		crypto.Keccak256(publicKey.SerializeUncompressed()[1:])[12:],
	)
}

// MessageHash returns the 32-byte digest signed for a message.
func MessageHash(message []byte) [32]byte {
	var h [32]byte
	copy(h[:], crypto.Keccak256(message))
	return h
}

// Challenge computes e = keccak256(address(R) || parity(X) || X.x || msgHash)
// where parity is encoded as 27 or 28.
func Challenge(
	finalNonce, combinedPublicKey *btcec.PublicKey, msgHash [32]byte,
) *btcec.ModNScalar {
	x := combinedPublicKey.SerializeCompressed()
	parity := x[0] - 2 + 27

	buf := make([]byte, 0, common.AddressLength+1+32+32)
	buf = append(buf, Address(finalNonce).Bytes()...)
	buf = append(buf, parity)
	buf = append(buf, x[1:]...)
	buf = append(buf, msgHash[:]...)

	var e btcec.ModNScalar
	e.SetByteSlice(crypto.Keccak256(buf))
	return &e
}

// SumSignatures adds the partial signatures of all parties mod n.
func SumSignatures(signatures ...[32]byte) [32]byte {
	var sum btcec.ModNScalar
	for _, sig := range signatures {
		var s btcec.ModNScalar
		s.SetBytes(&sig)
		sum.Add(&s)
	}
	return sum.Bytes()
}

// Verify checks an aggregated signature s against the final nonce R and the
// combined public key X: s*G == R + e*X.
func Verify(
	signature [32]byte, message []byte,
	finalNonce, combinedPublicKey *btcec.PublicKey,
) bool {
	if finalNonce == nil || combinedPublicKey == nil {
		return false
	}
	e := Challenge(finalNonce, combinedPublicKey, MessageHash(message))

	var s btcec.ModNScalar
	if overflow := s.SetBytes(&signature); overflow != 0 {
		return false
	}

	var sG, x, eX, r, expected btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&s, &sG)
	combinedPublicKey.AsJacobian(&x)
	btcec.ScalarMultNonConst(e, &x, &eX)
	finalNonce.AsJacobian(&r)
	btcec.AddNonConst(&r, &eX, &expected)

	sG.ToAffine()
	expected.ToAffine()
	return sG.X.Equals(&expected.X) && sG.Y.Equals(&expected.Y)
}

func hashPublicKeys(publicKeys []*btcec.PublicKey) ([]byte, error) {
	keys := make([][]byte, 0, len(publicKeys))
	for _, pk := range publicKeys {
		if pk == nil {
			return nil, ErrInvalidParticipants
		}
		keys = append(keys, pk.SerializeCompressed())
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	for i := 1; i < len(keys); i++ {
		if bytes.Equal(keys[i-1], keys[i]) {
			return nil, ErrDuplicatePublicKey
		}
	}
	return crypto.Keccak256(keys...), nil
}

func coefficient(l []byte, publicKey *btcec.PublicKey) *btcec.ModNScalar {
	var a btcec.ModNScalar
	a.SetByteSlice(crypto.Keccak256(l, publicKey.SerializeCompressed()))
	return &a
}

func toPublicKey(p *btcec.JacobianPoint) (*btcec.PublicKey, error) {
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return nil, ErrInvalidNonce
	}
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y), nil
}
