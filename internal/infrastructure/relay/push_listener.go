package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
)

var (
	// ErrNullWkIdentity ...
	ErrNullWkIdentity = errors.New("wkIdentity must not be null")
	// ErrNullHandler ...
	ErrNullHandler = errors.New("push handler must not be null")
)

// joinMessage subscribes the connection to the events of an identity.
type joinMessage struct {
	Action     relayauth.Action `json:"action"`
	WkIdentity string           `json:"wkIdentity"`
	*relayauth.AuthFields
}

// PushListenerOpts is the struct given to NewPushListener.
type PushListenerOpts struct {
	URL        string
	WkIdentity string
	// Auth authorizes the join request, it is optional.
	Auth    *relayauth.AuthFields
	Handler ports.PushHandler
}

func (o PushListenerOpts) validate() error {
	if len(o.URL) <= 0 {
		return ErrNullURL
	}
	if _, err := url.Parse(o.URL); err != nil {
		return err
	}
	if len(o.WkIdentity) <= 0 {
		return ErrNullWkIdentity
	}
	if o.Handler == nil {
		return ErrNullHandler
	}
	return nil
}

// PushListener reads the wkSign events pushed by the relay over a websocket
// and feeds them to a handler.
type PushListener struct {
	opts   PushListenerOpts
	dialer *websocket.Dialer

	joined   chan struct{}
	joinOnce sync.Once
}

func NewPushListener(opts PushListenerOpts) (*PushListener, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &PushListener{
		opts:   opts,
		dialer: websocket.DefaultDialer,
		joined: make(chan struct{}),
	}, nil
}

// Joined is closed once the join request has been sent to the relay. Events
// for requests published before that may be missed.
func (l *PushListener) Joined() <-chan struct{} {
	return l.joined
}

// Listen connects, joins the identity room and delivers events until ctx is
// done or the connection drops.
func (l *PushListener) Listen(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("connecting to relay push channel: %w", err)
	}
	defer conn.Close()

	buf, err := json.Marshal(joinMessage{
		Action:     relayauth.ActionJoin,
		WkIdentity: l.opts.WkIdentity,
		AuthFields: l.opts.Auth,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return fmt.Errorf("cannot join identity room: %w", err)
	}
	l.joinOnce.Do(func() { close(l.joined) })
	log.Debugf("listening for push events of %s", l.opts.WkIdentity)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-readCtx.Done()
		conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var event domain.PushEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.WithError(err).Debug("discarding malformed push event")
			continue
		}
		if !l.opts.Handler.HandlePushEvent(event) {
			log.Debugf("push event %s for %s not accepted", event.Type, event.RequestID)
		}
	}
}
