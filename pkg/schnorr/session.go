package schnorr

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/crypto"
)

// PartialSignature is one party's contribution to the aggregated signature,
// along with the values the verifier needs.
type PartialSignature struct {
	Signature         [32]byte
	Challenge         [32]byte
	FinalNonce        *btcec.PublicKey
	CombinedPublicKey *btcec.PublicKey
}

// Session is a single-use signing session. It holds a fresh nonce pair that
// is destroyed by the first call to Sign, whatever its outcome.
type Session struct {
	mu         sync.Mutex
	privateKey *btcec.PrivateKey
	k          *btcec.PrivateKey
	kTwo       *btcec.PrivateKey
	nonces     PublicNonces
	consumed   bool
}

// NewSession generates a random nonce pair for the given signing key.
func NewSession(privateKey *btcec.PrivateKey) (*Session, error) {
	if privateKey == nil {
		return nil, ErrNullPrivateKey
	}
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	kTwo, err := btcec.NewPrivateKey()
	if err != nil {
		k.Zero()
		return nil, err
	}

	return &Session{
		privateKey: privateKey,
		k:          k,
		kTwo:       kTwo,
		nonces: PublicNonces{
			KPublic:    k.PubKey(),
			KTwoPublic: kTwo.PubKey(),
		},
	}, nil
}

// PublicNonces returns the public nonces to share with the counterparty.
func (s *Session) PublicNonces() PublicNonces {
	return s.nonces
}

// PublicKey returns the public key of the session's signing key.
func (s *Session) PublicKey() *btcec.PublicKey {
	return s.privateKey.PubKey()
}

// Consumed returns whether the session can no longer sign.
func (s *Session) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

// Abort destroys the private nonces without signing.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consume()
}

// Sign computes the partial signature of message over the combined key of
// publicKeys and the combined nonce of publicNonces:
//
//	b = keccak256(X || msgHash || sum(K) || sum(KTwo))
//	R = sum(K_i + b*KTwo_i)
//	s = k + b*kTwo + e*a*x
//
// The session is consumed by the call.
func (s *Session) Sign(
	message []byte,
	publicKeys []*btcec.PublicKey,
	publicNonces []PublicNonces,
) (*PartialSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed {
		return nil, ErrSessionConsumed
	}
	defer s.consume()

	if len(publicKeys) != Participants || len(publicNonces) != Participants {
		return nil, ErrInvalidParticipants
	}
	ownKey := s.privateKey.PubKey()
	if !containsKey(publicKeys, ownKey) {
		return nil, ErrOwnKeyMissing
	}
	if !containsNonces(publicNonces, s.nonces) {
		return nil, ErrOwnNonceMissing
	}

	l, err := hashPublicKeys(publicKeys)
	if err != nil {
		return nil, err
	}
	combinedPublicKey, err := CombinePublicKeys(publicKeys)
	if err != nil {
		return nil, err
	}

	var kSum, kTwoSum btcec.JacobianPoint
	for _, n := range publicNonces {
		if n.KPublic == nil || n.KTwoPublic == nil {
			return nil, ErrInvalidParticipants
		}
		addPoint(&kSum, n.KPublic)
		addPoint(&kTwoSum, n.KTwoPublic)
	}
	kSumKey, err := toPublicKey(&kSum)
	if err != nil {
		return nil, err
	}
	kTwoSumKey, err := toPublicKey(&kTwoSum)
	if err != nil {
		return nil, err
	}

	msgHash := MessageHash(message)

	var b btcec.ModNScalar
	b.SetByteSlice(crypto.Keccak256(
		combinedPublicKey.SerializeCompressed(),
		msgHash[:],
		kSumKey.SerializeCompressed(),
		kTwoSumKey.SerializeCompressed(),
	))

	var kTwoSumJ, bKTwo, r btcec.JacobianPoint
	kTwoSumKey.AsJacobian(&kTwoSumJ)
	btcec.ScalarMultNonConst(&b, &kTwoSumJ, &bKTwo)
	kSumKey.AsJacobian(&kSum)
	btcec.AddNonConst(&kSum, &bKTwo, &r)
	finalNonce, err := toPublicKey(&r)
	if err != nil {
		return nil, err
	}

	e := Challenge(finalNonce, combinedPublicKey, msgHash)
	a := coefficient(l, ownKey)

	var sig, eax btcec.ModNScalar
	eax.Mul2(e, a).Mul(&s.privateKey.Key)
	sig.Mul2(&b, &s.kTwo.Key).Add(&s.k.Key).Add(&eax)

	return &PartialSignature{
		Signature:         sig.Bytes(),
		Challenge:         e.Bytes(),
		FinalNonce:        finalNonce,
		CombinedPublicKey: combinedPublicKey,
	}, nil
}

func (s *Session) consume() {
	s.consumed = true
	if s.k != nil {
		s.k.Zero()
	}
	if s.kTwo != nil {
		s.kTwo.Zero()
	}
}

func addPoint(sum *btcec.JacobianPoint, pk *btcec.PublicKey) {
	var p, next btcec.JacobianPoint
	pk.AsJacobian(&p)
	btcec.AddNonConst(sum, &p, &next)
	*sum = next
}

func containsKey(keys []*btcec.PublicKey, key *btcec.PublicKey) bool {
	for _, k := range keys {
		if k != nil && k.IsEqual(key) {
			return true
		}
	}
	return false
}

func containsNonces(list []PublicNonces, nonces PublicNonces) bool {
	for _, n := range list {
		if n.KPublic != nil && n.KTwoPublic != nil &&
			n.KPublic.IsEqual(nonces.KPublic) &&
			n.KTwoPublic.IsEqual(nonces.KTwoPublic) {
			return true
		}
	}
	return false
}
