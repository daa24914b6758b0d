package ports

import (
	"context"

	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
)

// ActionRequest is the body of a relay action submission.
type ActionRequest struct {
	Chain      string `json:"chain"`
	WkIdentity string `json:"wkIdentity"`
	Action     string `json:"action"`
	Payload    string `json:"payload"`
	Path       string `json:"path"`
	RequestID  string `json:"requestId,omitempty"`
}

// AuthorizedActionRequest is an ActionRequest with the identity signature
// attached.
type AuthorizedActionRequest struct {
	ActionRequest
	*relayauth.AuthFields
}

// Relay submits signed envelopes to the relay service. Implementations must
// never retry a submission.
type Relay interface {
	PostAction(ctx context.Context, req AuthorizedActionRequest) error
}

// PushHandler consumes the events pushed by the relay.
type PushHandler interface {
	HandlePushEvent(event domain.PushEvent) bool
}
