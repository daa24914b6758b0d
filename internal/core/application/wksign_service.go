package application

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

const (
	wkSignRelayAction        = "wksigning"
	defaultWkSignHistorySize = 256
)

// IdentityProvider returns the authorizer of the wallet identity.
type IdentityProvider interface {
	IdentityAuthorizer(ctx context.Context) (*relayauth.Authorizer, error)
}

// WkSignService drives wkSign requests from validation to a terminal state.
type WkSignService interface {
	Sign(ctx context.Context, req domain.WkSignRequest) (*domain.WkSignResult, error)
	// HandlePushEvent delivers a relay push event to the pending request and
	// returns whether it was accepted. Events for any other request are
	// ignored.
	HandlePushEvent(event domain.PushEvent) bool
	// Cancel aborts the pending request with the given id.
	Cancel(requestID string) bool
	// State returns the state of a request seen by the service. Only the
	// most recent finished requests are remembered.
	State(requestID string) (domain.WkSignState, bool)
}

// WkSignServiceOpts is the struct given to NewWkSignService.
type WkSignServiceOpts struct {
	Identity      IdentityProvider
	Relay         ports.Relay
	IdentityChain chain.Chain
	Policy        domain.MessagePolicy
	// Timeout bounds the wait for the counter-signature. Zero leaves it to
	// the caller's context.
	Timeout time.Duration
	Metrics *Metrics
	// HistorySize is the number of finished requests whose state is kept.
	// Defaults to 256.
	HistorySize int
}

type pendingWkSign struct {
	session *domain.WkSignSession
	mailbox chan domain.PushEvent
	cancel  context.CancelCauseFunc
}

type wkSignService struct {
	identity     IdentityProvider
	relay        ports.Relay
	identitySpec chain.Spec
	policy       domain.MessagePolicy
	timeout      time.Duration
	metrics      *Metrics
	now          func() time.Time

	lock        *sync.Mutex
	sessions    map[string]*domain.WkSignSession
	finished    []string
	historySize int
	pending     *pendingWkSign
}

func NewWkSignService(opts WkSignServiceOpts) (WkSignService, error) {
	spec, err := chain.Get(opts.IdentityChain)
	if err != nil {
		return nil, err
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = defaultWkSignHistorySize
	}
	return &wkSignService{
		identity:     opts.Identity,
		relay:        opts.Relay,
		identitySpec: spec,
		policy:       opts.Policy,
		timeout:      opts.Timeout,
		metrics:      opts.Metrics,
		now:          time.Now,
		lock:         &sync.Mutex{},
		sessions:     map[string]*domain.WkSignSession{},
		historySize:  historySize,
	}, nil
}

func (s *wkSignService) Sign(
	ctx context.Context, req domain.WkSignRequest,
) (*domain.WkSignResult, error) {
	if len(req.RequestID) <= 0 {
		req.RequestID = uuid.New().String()
	}
	session, err := s.newSession(req.RequestID)
	if err != nil {
		return nil, err
	}

	result, err := s.sign(ctx, session, req)
	s.retire(req.RequestID)
	s.metrics.wkSignOutcome(string(req.AuthMode), session.State().String())
	if err != nil {
		log.WithError(err).Debugf(
			"wkSign request %s ended in state %s", req.RequestID, session.State(),
		)
		return nil, err
	}
	return result, nil
}

func (s *wkSignService) sign(
	ctx context.Context, session *domain.WkSignSession, req domain.WkSignRequest,
) (*domain.WkSignResult, error) {
	if err := session.Transition(domain.WkSignValidating); err != nil {
		return nil, err
	}
	if !req.AuthMode.IsValid() {
		return nil, s.fail(session, fmt.Errorf(
			"%w: %q", domain.ErrInvalidAuthMode, req.AuthMode,
		))
	}
	if err := domain.ValidateMessage(req.Message, s.now(), s.policy); err != nil {
		return nil, s.fail(session, err)
	}

	authorizer, err := s.identity.IdentityAuthorizer(ctx)
	if err != nil {
		return nil, s.fail(session, err)
	}
	defer authorizer.Zero()

	walletSignature, err := authorizer.Sign(req.Message)
	if err != nil {
		return nil, s.fail(session, err)
	}
	if err := session.Transition(domain.WkSignLocallySigned); err != nil {
		return nil, err
	}

	result := &domain.WkSignResult{
		RequestID:       req.RequestID,
		WalletSignature: walletSignature,
		WalletPublicKey: authorizer.PublicKey(),
		WitnessScript:   authorizer.WitnessScript(),
		WkIdentity:      authorizer.Identity(),
		Message:         req.Message,
	}

	if req.AuthMode == domain.AuthModeWalletOnly {
		if err := session.Transition(domain.WkSignComplete); err != nil {
			return nil, err
		}
		return result, nil
	}

	return s.signWithKey(ctx, session, req, authorizer, result)
}

func (s *wkSignService) signWithKey(
	ctx context.Context,
	session *domain.WkSignSession,
	req domain.WkSignRequest,
	authorizer *relayauth.Authorizer,
	result *domain.WkSignResult,
) (*domain.WkSignResult, error) {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		waitCtx, cancelTimeout = context.WithTimeout(waitCtx, s.timeout)
		defer cancelTimeout()
	}

	pending := &pendingWkSign{
		session: session,
		mailbox: make(chan domain.PushEvent, 1),
		cancel:  cancel,
	}
	s.setPending(pending)
	defer s.clearPending(pending)

	if err := s.publish(waitCtx, req, authorizer, result); err != nil {
		return nil, s.interrupt(session, waitCtx, err)
	}
	if err := session.Transition(domain.WkSignAwaitingCounterparty); err != nil {
		return nil, s.interrupt(session, waitCtx, err)
	}
	log.Debugf("wkSign request %s awaiting key device", req.RequestID)

	select {
	case event := <-pending.mailbox:
		if event.Type == domain.PushEventWkSigningRejected {
			if err := session.Transition(domain.WkSignRejected); err != nil {
				return nil, err
			}
			if len(event.Reason) > 0 {
				return nil, fmt.Errorf("%w: %s", domain.ErrWkSignRejected, event.Reason)
			}
			return nil, domain.ErrWkSignRejected
		}

		keyPublicKey, err := verifyCounterSignature(event, result, s.identitySpec)
		if err != nil {
			return nil, s.fail(session, err)
		}
		if err := session.Transition(domain.WkSignCounterpartySigned); err != nil {
			return nil, err
		}
		result.KeySignature = event.Signature
		result.KeyPublicKey = keyPublicKey
		if err := session.Transition(domain.WkSignComplete); err != nil {
			return nil, err
		}
		return result, nil

	case <-waitCtx.Done():
		return nil, s.interrupt(session, waitCtx, nil)
	}
}

func (s *wkSignService) publish(
	ctx context.Context,
	req domain.WkSignRequest,
	authorizer *relayauth.Authorizer,
	result *domain.WkSignResult,
) error {
	payload, err := json.Marshal(struct {
		*domain.WkSignResult
		RequesterInfo *domain.RequesterInfo `json:"requesterInfo,omitempty"`
	}{result, req.RequesterInfo})
	if err != nil {
		return err
	}

	actionReq := ports.ActionRequest{
		Chain:      string(s.identitySpec.Chain),
		WkIdentity: result.WkIdentity,
		Action:     wkSignRelayAction,
		Payload:    string(payload),
		Path:       domain.DerivationKey(wallet.Identity, 0),
		RequestID:  req.RequestID,
	}
	auth, err := authorizer.Authorize(relayauth.ActionAction, actionReq)
	if err != nil {
		return err
	}
	return s.relay.PostAction(ctx, ports.AuthorizedActionRequest{
		ActionRequest: actionReq,
		AuthFields:    auth,
	})
}

// verifyCounterSignature checks the key device signature of the message
// against the key public key of the identity witness script and returns the
// hex encoded key.
func verifyCounterSignature(
	event domain.PushEvent, result *domain.WkSignResult, spec chain.Spec,
) (string, error) {
	script, err := hex.DecodeString(result.WitnessScript)
	if err != nil {
		return "", err
	}
	pubkeys, err := wallet.ParseMultisigScript(script)
	if err != nil {
		return "", err
	}

	var keyPublicKey string
	for _, pk := range pubkeys {
		if k := hex.EncodeToString(pk); k != result.WalletPublicKey {
			keyPublicKey = k
		}
	}
	if len(keyPublicKey) <= 0 {
		return "", domain.ErrInvalidCounterSignature
	}
	if len(event.PublicKey) > 0 && event.PublicKey != keyPublicKey {
		return "", fmt.Errorf(
			"%w: unexpected public key %s", domain.ErrInvalidCounterSignature,
			event.PublicKey,
		)
	}

	if err := wallet.VerifyMessage(wallet.VerifyMessageOpts{
		Message:   result.Message,
		Signature: event.Signature,
		PublicKey: keyPublicKey,
		Spec:      spec,
	}); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCounterSignature, err)
	}
	return keyPublicKey, nil
}

func (s *wkSignService) HandlePushEvent(event domain.PushEvent) bool {
	if !event.IsValid() {
		s.metrics.pushEvent(invalidPushEventLabel, false)
		return false
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	pending := s.pending
	if pending == nil || pending.session.RequestID != event.RequestID ||
		pending.session.State().IsTerminal() {
		log.Debugf("ignoring %s event for request %s", event.Type, event.RequestID)
		s.metrics.pushEvent(string(event.Type), false)
		return false
	}

	select {
	case pending.mailbox <- event:
		s.metrics.pushEvent(string(event.Type), true)
		return true
	default:
		log.Debugf("duplicate %s event for request %s", event.Type, event.RequestID)
		s.metrics.pushEvent(string(event.Type), false)
		return false
	}
}

func (s *wkSignService) Cancel(requestID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.pending == nil || s.pending.session.RequestID != requestID {
		return false
	}
	s.pending.cancel(domain.ErrWkSignCancelled)
	return true
}

func (s *wkSignService) State(requestID string) (domain.WkSignState, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	session, ok := s.sessions[requestID]
	if !ok {
		return domain.WkSignIdle, false
	}
	return session.State(), true
}

func (s *wkSignService) newSession(requestID string) (*domain.WkSignSession, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.sessions[requestID]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequestIDReused, requestID)
	}
	session := domain.NewWkSignSession(requestID)
	s.sessions[requestID] = session
	return session, nil
}

// retire records requestID as finished and forgets the oldest finished
// requests beyond the history size.
func (s *wkSignService) retire(requestID string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.finished = append(s.finished, requestID)
	for len(s.finished) > s.historySize {
		delete(s.sessions, s.finished[0])
		s.finished = s.finished[1:]
	}
}

// setPending makes p the only pending request, superseding the previous one.
func (s *wkSignService) setPending(p *pendingWkSign) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if prev := s.pending; prev != nil {
		log.Debugf(
			"wkSign request %s superseded by %s",
			prev.session.RequestID, p.session.RequestID,
		)
		prev.cancel(domain.ErrWkSignSuperseded)
	}
	s.pending = p
}

func (s *wkSignService) clearPending(p *pendingWkSign) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.pending == p {
		s.pending = nil
	}
}

func (s *wkSignService) fail(session *domain.WkSignSession, err error) error {
	if terr := session.Transition(domain.WkSignFailed); terr != nil {
		log.WithError(terr).Warn("failed to mark wkSign request as failed")
	}
	return err
}

// interrupt moves the session to Cancelled or Failed depending on why ctx
// ended. A nil err is replaced by the context cause.
func (s *wkSignService) interrupt(
	session *domain.WkSignSession, ctx context.Context, err error,
) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return s.fail(session, err)
	}

	if errors.Is(cause, context.DeadlineExceeded) {
		if err == nil {
			err = fmt.Errorf("%w: %v", domain.ErrWkSignTimeout, cause)
		}
		return s.fail(session, err)
	}

	if terr := session.Transition(domain.WkSignCancelled); terr != nil {
		log.WithError(terr).Warn("failed to mark wkSign request as cancelled")
	}
	if errors.Is(cause, domain.ErrWkSignCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %v", domain.ErrWkSignCancelled, cause)
}
