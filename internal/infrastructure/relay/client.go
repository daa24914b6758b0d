package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/pkg/circuitbreaker"
	"go.uber.org/ratelimit"
)

const actionPath = "/v1/action"

var (
	// ErrNullURL ...
	ErrNullURL = errors.New("relay url must not be null")
	// ErrRelayUnavailable is returned while the circuit breaker is open.
	ErrRelayUnavailable = errors.New("relay temporarily unavailable")
)

// StatusError is returned when the relay answers with a non 2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay replied with status %d: %s", e.Code, e.Body)
}

// ClientOpts is the struct given to NewClient.
type ClientOpts struct {
	URL            string
	RequestTimeout time.Duration
	// RateLimit is the max number of requests per second. Zero disables it.
	RateLimit int
}

type client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// NewClient returns a ports.Relay talking to the relay HTTP API. Failed
// submissions are never retried.
func NewClient(opts ClientOpts) (ports.Relay, error) {
	if len(opts.URL) <= 0 {
		return nil, ErrNullURL
	}

	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}

	return &client{
		baseURL: strings.TrimSuffix(opts.URL, "/"),
		http:    &http.Client{Timeout: opts.RequestTimeout},
		cb:      circuitbreaker.NewCircuitBreaker("relay"),
		limiter: limiter,
	}, nil
}

func (c *client) PostAction(
	ctx context.Context, req ports.AuthorizedActionRequest,
) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.limiter.Take()
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, actionPath, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	if err != nil {
		return err
	}

	log.Debugf("relay action %s posted for %s", req.Action, req.WkIdentity)
	return nil
}

func (c *client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(buf)}
	}
	return nil
}
