package domain

import "errors"

var (
	// ErrCoSignUnsupportedChain is returned for co-sign requests on chains
	// without a smart account.
	ErrCoSignUnsupportedChain = errors.New("co-signing is only supported on EVM chains")
	// ErrNullCoSignMessage ...
	ErrNullCoSignMessage = errors.New("co-sign message must not be null")
	// ErrInvalidPublicNonces ...
	ErrInvalidPublicNonces = errors.New("invalid counterparty public nonces")
)

// PublicNonces are the hex encoded compressed public nonces of a party.
type PublicNonces struct {
	KPublic    string `json:"kPublic"`
	KTwoPublic string `json:"kTwoPublic"`
}

// CoSignRequest asks for the wallet partial signature of a smart account
// operation hash. KeyNonces are the public nonces the key device committed
// to for this operation.
type CoSignRequest struct {
	RequestID string
	// WalletID defaults to the wallet in use of the chain.
	WalletID  string
	Message   []byte
	KeyNonces PublicNonces
}

// CoSignResult is the wallet half of a 2-of-2 Schnorr signature. The key
// device completes it with its own partial signature over the same final
// nonce and combined public key.
type CoSignResult struct {
	RequestID         string       `json:"requestId"`
	Address           string       `json:"address"`
	Message           string       `json:"message"`
	WalletPublicKey   string       `json:"walletPubKey"`
	WalletNonces      PublicNonces `json:"walletNonces"`
	PartialSignature  string       `json:"partialSignature"`
	Challenge         string       `json:"challenge"`
	FinalNonce        string       `json:"finalNonce"`
	CombinedPublicKey string       `json:"combinedPubKey"`
}
