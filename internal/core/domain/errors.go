package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ssp-wallet/ssp-core/pkg/chain"
)

var (
	// ErrChainUnsynced is matched by every *ChainUnsyncedError.
	ErrChainUnsynced = errors.New("chain unsynced")
	// ErrChainNeverSynced is returned when the key device has not shared its
	// extended public key for a chain yet.
	ErrChainNeverSynced = errors.New("chain never synced with key device")
	// ErrWalletNotInitialized is returned when no encrypted seed is stored.
	ErrWalletNotInitialized = errors.New("wallet not initialized")
	// ErrInvalidDerivationKey ...
	ErrInvalidDerivationKey = errors.New("invalid derivation key")
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid wkSign state transition")
	// ErrInvalidMessage is matched by every *MessageError.
	ErrInvalidMessage = errors.New("invalid wkSign message")
	// ErrInvalidAuthMode ...
	ErrInvalidAuthMode = errors.New("invalid wkSign auth mode")
	// ErrRequestIDReused is returned for a wkSign request whose id has
	// already been used.
	ErrRequestIDReused = errors.New("wkSign request id already used")
	// ErrWkSignRejected is returned when the key device rejects a request.
	ErrWkSignRejected = errors.New("wkSign request rejected by key device")
	// ErrWkSignCancelled ...
	ErrWkSignCancelled = errors.New("wkSign request cancelled")
	// ErrWkSignSuperseded is returned for a request abandoned in favor of a
	// newer one. It matches ErrWkSignCancelled.
	ErrWkSignSuperseded = fmt.Errorf("%w: superseded by a new request", ErrWkSignCancelled)
	// ErrWkSignTimeout is returned when the counter-signature does not
	// arrive in time.
	ErrWkSignTimeout = errors.New("wkSign counter-signature timed out")
	// ErrInvalidCounterSignature ...
	ErrInvalidCounterSignature = errors.New("invalid key device signature")
)

// ChainUnsyncedError is returned when the stored key material of a chain
// exists but cannot be decrypted.
type ChainUnsyncedError struct {
	Chain chain.Chain
	Err   error
}

func (e *ChainUnsyncedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrChainUnsynced, e.Chain, e.Err)
}

func (e *ChainUnsyncedError) Is(target error) bool {
	return target == ErrChainUnsynced
}

func (e *ChainUnsyncedError) Unwrap() error {
	return e.Err
}

// TransitionError ...
type TransitionError struct {
	From WkSignState
	To   WkSignState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// MessageErrorKind classifies a rejected wkSign message.
type MessageErrorKind string

const (
	MessageMalformed  MessageErrorKind = "malformed"
	MessageExpired    MessageErrorKind = "expired"
	MessageFromFuture MessageErrorKind = "fromFuture"
)

// MessageError is returned for a wkSign message failing validation.
type MessageError struct {
	Kind      MessageErrorKind
	Reason    string
	Timestamp time.Time
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("%s (%s): %s", ErrInvalidMessage, e.Kind, e.Reason)
}

func (e *MessageError) Is(target error) bool {
	return target == ErrInvalidMessage
}

// IsExpired ...
func (e *MessageError) IsExpired() bool {
	return e.Kind == MessageExpired
}
