package domain

// PushEventType is the type of an event pushed by the relay.
type PushEventType string

const (
	PushEventWkSigned          PushEventType = "wkSigned"
	PushEventWkSigningRejected PushEventType = "wkSigningRejected"
)

// PushEvent is an event the relay pushes for a wkSign request.
type PushEvent struct {
	Type      PushEventType `json:"type"`
	RequestID string        `json:"requestId"`
	// Signature and PublicKey are set on wkSigned events.
	Signature string `json:"signature,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
	// Reason is set on wkSigningRejected events.
	Reason string `json:"reason,omitempty"`
}

// IsValid ...
func (e PushEvent) IsValid() bool {
	if len(e.RequestID) <= 0 {
		return false
	}
	switch e.Type {
	case PushEventWkSigned:
		return len(e.Signature) > 0
	case PushEventWkSigningRejected:
		return true
	default:
		return false
	}
}
