// Package relayauth signs the envelopes that authorize relay requests on
// behalf of a wallet identity.
package relayauth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/multisig"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"github.com/thanhpk/randstr"
)

const nonceLength = 32

// Action is the kind of relay request being authorized.
type Action string

const (
	ActionSync   Action = "sync"
	ActionAction Action = "action"
	ActionToken  Action = "token"
	ActionJoin   Action = "join"
)

var (
	// ErrInvalidAction ...
	ErrInvalidAction = errors.New("unknown relay action")
	// ErrNullXprivWallet ...
	ErrNullXprivWallet = errors.New("wallet extended private key is required")
	// ErrNullXpubKey ...
	ErrNullXpubKey = errors.New("key extended public key is required")
	// ErrAuthorizerZeroed ...
	ErrAuthorizerZeroed = errors.New("authorizer key material has been dropped")
)

// IsValid returns whether the action is one the relay accepts.
func (a Action) IsValid() bool {
	switch a {
	case ActionSync, ActionAction, ActionToken, ActionJoin:
		return true
	default:
		return false
	}
}

// Payload is the signed part of the envelope. Field order is fixed so that
// the serialization is deterministic.
type Payload struct {
	Timestamp int64  `json:"timestamp"`
	Action    Action `json:"action"`
	Identity  string `json:"identity"`
	Nonce     string `json:"nonce"`
	DataHash  string `json:"dataHash,omitempty"`
}

// AuthFields are attached to the relay request.
type AuthFields struct {
	Signature     string `json:"signature"`
	Message       string `json:"message"`
	PublicKey     string `json:"publicKey"`
	WitnessScript string `json:"witnessScript"`
}

// NewAuthorizerOpts is the struct given to NewAuthorizer method
type NewAuthorizerOpts struct {
	XprivWallet string
	XpubWallet  string
	XpubKey     string
	// Spec is the identity chain's spec.
	Spec chain.Spec
}

func (o NewAuthorizerOpts) validate() error {
	if len(o.XprivWallet) <= 0 {
		return ErrNullXprivWallet
	}
	if len(o.XpubKey) <= 0 {
		return ErrNullXpubKey
	}
	return nil
}

// Authorizer signs relay payloads with the wallet's identity key.
type Authorizer struct {
	identity      string
	witnessScript string
	privateKey    *btcec.PrivateKey
	publicKey     string
	spec          chain.Spec

	now   func() time.Time
	nonce func() string
}

// NewAuthorizer derives the identity key pair and the identity multisig
// descriptor (typeIndex 10, addressIndex 0) of the wallet.
func NewAuthorizer(opts NewAuthorizerOpts) (*Authorizer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	xpubWallet := opts.XpubWallet
	if len(xpubWallet) <= 0 {
		xpub, err := wallet.NeuterExtendedKey(opts.XprivWallet, opts.Spec)
		if err != nil {
			return nil, err
		}
		xpubWallet = xpub
	}

	descriptor, err := multisig.BuildUtxoMultisig(multisig.BuildUtxoMultisigOpts{
		XpubA:        xpubWallet,
		XpubB:        opts.XpubKey,
		TypeIndex:    wallet.Identity,
		AddressIndex: 0,
		Spec:         opts.Spec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build identity: %w", err)
	}

	privateKey, publicKey, err := wallet.DeriveLeafKeyPair(
		opts.XprivWallet, wallet.Identity, 0,
	)
	if err != nil {
		return nil, err
	}

	return &Authorizer{
		identity:      descriptor.Address,
		witnessScript: identityScript(descriptor),
		privateKey:    privateKey,
		publicKey:     hex.EncodeToString(publicKey.SerializeCompressed()),
		spec:          opts.Spec,
		now:           time.Now,
		nonce:         func() string { return randstr.Hex(nonceLength) },
	}, nil
}

// Identity returns the wkIdentity the authorizer signs for.
func (a *Authorizer) Identity() string {
	return a.identity
}

// WitnessScript returns the hex encoded identity multisig script.
func (a *Authorizer) WitnessScript() string {
	return a.witnessScript
}

// PublicKey returns the hex encoded identity public key of the wallet.
func (a *Authorizer) PublicKey() string {
	return a.publicKey
}

// Authorize builds and signs the payload of a relay request. When body is
// not nil its hash is bound to the signature.
func (a *Authorizer) Authorize(action Action, body interface{}) (*AuthFields, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, string(action))
	}
	if a.privateKey == nil {
		return nil, ErrAuthorizerZeroed
	}

	payload := Payload{
		Timestamp: a.now().UnixMilli(),
		Action:    action,
		Identity:  a.identity,
		Nonce:     a.nonce(),
	}
	if body != nil {
		dataHash, err := DataHash(body)
		if err != nil {
			return nil, err
		}
		payload.DataHash = dataHash
	}

	message, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	signature, err := a.Sign(string(message))
	if err != nil {
		return nil, err
	}

	return &AuthFields{
		Signature:     signature,
		Message:       string(message),
		PublicKey:     a.publicKey,
		WitnessScript: a.witnessScript,
	}, nil
}

// Sign signs an arbitrary message with the identity key.
func (a *Authorizer) Sign(message string) (string, error) {
	if a.privateKey == nil {
		return "", ErrAuthorizerZeroed
	}
	return wallet.SignMessage(wallet.SignMessageOpts{
		Message:    message,
		PrivateKey: a.privateKey,
		Spec:       a.spec,
	})
}

// Zero drops the identity private key. The authorizer can no longer sign.
func (a *Authorizer) Zero() {
	if a.privateKey != nil {
		a.privateKey.Zero()
		a.privateKey = nil
	}
}

// DataHash returns the hex sha256 of the JSON serialization of body.
func DataHash(body interface{}) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to serialize request body: %w", err)
	}
	h := sha256.Sum256(buf)
	return hex.EncodeToString(h[:]), nil
}

func identityScript(d *multisig.Descriptor) string {
	if len(d.WitnessScript) > 0 {
		return d.WitnessScript
	}
	return d.RedeemScript
}
