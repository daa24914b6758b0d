package domain

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const timestampDigits = 13

// WkSignState is the state of a wkSign request.
type WkSignState int

const (
	WkSignIdle WkSignState = iota
	WkSignValidating
	WkSignLocallySigned
	WkSignAwaitingCounterparty
	WkSignCounterpartySigned
	WkSignComplete
	WkSignRejected
	WkSignFailed
	WkSignCancelled
)

var wkSignStateNames = map[WkSignState]string{
	WkSignIdle:                 "idle",
	WkSignValidating:           "validating",
	WkSignLocallySigned:        "locallySigned",
	WkSignAwaitingCounterparty: "awaitingCounterparty",
	WkSignCounterpartySigned:   "counterpartySigned",
	WkSignComplete:             "complete",
	WkSignRejected:             "rejected",
	WkSignFailed:               "failed",
	WkSignCancelled:            "cancelled",
}

func (s WkSignState) String() string {
	if name, ok := wkSignStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// IsTerminal returns whether no transition can leave the state.
func (s WkSignState) IsTerminal() bool {
	switch s {
	case WkSignComplete, WkSignRejected, WkSignFailed, WkSignCancelled:
		return true
	default:
		return false
	}
}

// wkSignTransitions lists the states reachable from every non terminal
// state, cancellation excluded since it is always allowed.
var wkSignTransitions = map[WkSignState][]WkSignState{
	WkSignIdle:                 {WkSignValidating},
	WkSignValidating:           {WkSignLocallySigned, WkSignFailed},
	WkSignLocallySigned:        {WkSignComplete, WkSignAwaitingCounterparty, WkSignFailed},
	WkSignAwaitingCounterparty: {WkSignCounterpartySigned, WkSignRejected, WkSignFailed},
	WkSignCounterpartySigned:   {WkSignComplete, WkSignFailed},
}

// AuthMode tells whether a wkSign request needs the key device signature.
type AuthMode string

const (
	AuthModeWalletOnly    AuthMode = "walletOnly"
	AuthModeWalletPlusKey AuthMode = "walletPlusKey"
)

// IsValid ...
func (m AuthMode) IsValid() bool {
	return m == AuthModeWalletOnly || m == AuthModeWalletPlusKey
}

// RequesterInfo describes the origin asking for the signature.
type RequesterInfo struct {
	Origin      string `json:"origin,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Description string `json:"description,omitempty"`
	IconURL     string `json:"iconUrl,omitempty"`
}

// WkSignRequest asks the wallet (and optionally the key) to sign a challenge.
type WkSignRequest struct {
	RequestID     string
	Message       string
	AuthMode      AuthMode
	RequesterInfo *RequesterInfo
}

// WkSignResult carries the signatures of a completed request.
type WkSignResult struct {
	RequestID       string `json:"requestId"`
	WalletSignature string `json:"walletSignature"`
	WalletPublicKey string `json:"walletPubKey"`
	KeySignature    string `json:"keySignature,omitempty"`
	KeyPublicKey    string `json:"keyPubKey,omitempty"`
	WitnessScript   string `json:"witnessScript"`
	WkIdentity      string `json:"wkIdentity"`
	Message         string `json:"message"`
}

// WkSignSession tracks the state of a single request. It is safe for
// concurrent use.
type WkSignSession struct {
	RequestID string

	lock    sync.RWMutex
	state   WkSignState
	history []WkSignState
}

// NewWkSignSession returns an Idle session.
func NewWkSignSession(requestID string) *WkSignSession {
	return &WkSignSession{
		RequestID: requestID,
		state:     WkSignIdle,
		history:   []WkSignState{WkSignIdle},
	}
}

// State returns the current state.
func (s *WkSignSession) State() WkSignState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

// History returns every state the session went through, in order.
func (s *WkSignSession) History() []WkSignState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]WkSignState(nil), s.history...)
}

// Transition moves the session to the next state. Any non terminal state can
// move to Cancelled, terminal states accept no transition.
func (s *WkSignSession) Transition(next WkSignState) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state.IsTerminal() {
		return &TransitionError{From: s.state, To: next}
	}
	if next != WkSignCancelled && !canTransition(s.state, next) {
		return &TransitionError{From: s.state, To: next}
	}
	s.state = next
	s.history = append(s.history, next)
	return nil
}

func canTransition(from, to WkSignState) bool {
	for _, s := range wkSignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// MessagePolicy bounds the timestamp embedded in a wkSign message.
type MessagePolicy struct {
	ValidityWindow time.Duration
	FutureDrift    time.Duration
	EpochFloor     time.Time
}

// DefaultMessagePolicy ...
var DefaultMessagePolicy = MessagePolicy{
	ValidityWindow: 15 * time.Minute,
	FutureDrift:    5 * time.Minute,
	EpochFloor:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
}

// ValidateMessage checks that message starts with a 13-digit millisecond
// timestamp followed by a non empty challenge, and that the timestamp is
// within the policy bounds relative to now.
func ValidateMessage(message string, now time.Time, policy MessagePolicy) error {
	if len(message) <= timestampDigits {
		return &MessageError{Kind: MessageMalformed, Reason: "missing challenge"}
	}
	prefix := message[:timestampDigits]
	for _, c := range prefix {
		if c < '0' || c > '9' {
			return &MessageError{
				Kind: MessageMalformed, Reason: "missing timestamp prefix",
			}
		}
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return &MessageError{Kind: MessageMalformed, Reason: err.Error()}
	}
	ts := time.UnixMilli(ms)

	if !policy.EpochFloor.IsZero() && ts.Before(policy.EpochFloor) {
		return &MessageError{
			Kind:      MessageMalformed,
			Reason:    "timestamp before epoch floor",
			Timestamp: ts,
		}
	}
	if ts.After(now.Add(policy.FutureDrift)) {
		return &MessageError{
			Kind:      MessageFromFuture,
			Reason:    "timestamp too far in the future",
			Timestamp: ts,
		}
	}
	if ts.Before(now.Add(-policy.ValidityWindow)) {
		return &MessageError{
			Kind:      MessageExpired,
			Reason:    "message older than validity window",
			Timestamp: ts,
		}
	}
	return nil
}
