package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RejectCode identifies why an external request was rejected.
type RejectCode int

const (
	RejectCodeUserRejected RejectCode = 4001
	RejectCodeSuperseded   RejectCode = -32002
	RejectCodeInternal     RejectCode = -32603
)

var (
	// ErrRequestNotPending is returned when resolving a request that is not
	// the pending one.
	ErrRequestNotPending = errors.New("request is not pending")
	// ErrNullMethod ...
	ErrNullMethod = errors.New("request method must not be null")
)

// RejectError is the error an external request is rejected with.
type RejectError struct {
	Code    RejectCode
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.Code, e.Message)
}

// ExternalRequest is a request coming from a site connected to the wallet.
type ExternalRequest struct {
	ID     string
	Method string
	Params interface{}
	Origin string
}

// Response is delivered exactly once for every submitted request.
type Response struct {
	RequestID string
	Result    interface{}
	Err       *RejectError
}

// RequestBroker serializes the external requests shown to the user. At most
// one request is pending at a time.
type RequestBroker interface {
	// Submit makes req the pending request. A previously pending request is
	// rejected with RejectCodeSuperseded. callback is called at most once.
	Submit(req ExternalRequest, callback func(Response)) (string, error)
	// Request submits req and blocks until it is resolved or ctx is done.
	Request(ctx context.Context, req ExternalRequest) (interface{}, error)
	Pending() (ExternalRequest, bool)
	Resolve(requestID string, result interface{}) error
	Reject(requestID string, code RejectCode, message string) error
}

type pendingRequest struct {
	req      ExternalRequest
	callback func(Response)
}

type requestBroker struct {
	lock    *sync.Mutex
	pending *pendingRequest
}

func NewRequestBroker() RequestBroker {
	return &requestBroker{lock: &sync.Mutex{}}
}

func (b *requestBroker) Submit(
	req ExternalRequest, callback func(Response),
) (string, error) {
	if len(req.Method) <= 0 {
		return "", ErrNullMethod
	}
	if len(req.ID) <= 0 {
		req.ID = uuid.New().String()
	}

	b.lock.Lock()
	prev := b.pending
	b.pending = &pendingRequest{req: req, callback: callback}
	b.lock.Unlock()

	if prev != nil {
		log.Debugf("request %s superseded by %s", prev.req.ID, req.ID)
		prev.fire(Response{
			RequestID: prev.req.ID,
			Err: &RejectError{
				Code:    RejectCodeSuperseded,
				Message: "superseded by a new request",
			},
		})
	}
	return req.ID, nil
}

func (b *requestBroker) Request(
	ctx context.Context, req ExternalRequest,
) (interface{}, error) {
	done := make(chan Response, 1)
	id, err := b.Submit(req, func(res Response) { done <- res })
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Result, nil
	case <-ctx.Done():
		// The callback may have fired concurrently; done is buffered.
		_ = b.Reject(id, RejectCodeInternal, ctx.Err().Error())
		return nil, ctx.Err()
	}
}

func (b *requestBroker) Pending() (ExternalRequest, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.pending == nil {
		return ExternalRequest{}, false
	}
	return b.pending.req, true
}

func (b *requestBroker) Resolve(requestID string, result interface{}) error {
	p, err := b.take(requestID)
	if err != nil {
		return err
	}
	p.fire(Response{RequestID: requestID, Result: result})
	return nil
}

func (b *requestBroker) Reject(
	requestID string, code RejectCode, message string,
) error {
	p, err := b.take(requestID)
	if err != nil {
		return err
	}
	p.fire(Response{
		RequestID: requestID,
		Err:       &RejectError{Code: code, Message: message},
	})
	return nil
}

// take clears the pending request if it matches requestID.
func (b *requestBroker) take(requestID string) (*pendingRequest, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.pending == nil || b.pending.req.ID != requestID {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotPending, requestID)
	}
	p := b.pending
	b.pending = nil
	return p, nil
}

// fire calls the callback and clears it. Only the goroutine that removed p
// from the broker calls fire, so the callback runs at most once.
func (p *pendingRequest) fire(res Response) {
	cb := p.callback
	p.callback = nil
	if cb != nil {
		cb(res)
	}
}
