package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssp-wallet/ssp-core/internal/core/application"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/internal/infrastructure/storage/db/inmemory"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/thanhpk/randstr"
)

const waitFor = 5 * time.Second

func TestWkSignWalletOnly(t *testing.T) {
	relay := &mockRelay{}
	svc := newTestWkSignService(t, relay, 0)

	req := domain.WkSignRequest{
		RequestID: "wallet-only",
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletOnly,
	}
	result, err := svc.Sign(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, req.Message, result.Message)
	require.NotEmpty(t, result.WkIdentity)
	require.NotEmpty(t, result.WitnessScript)
	require.Empty(t, result.KeySignature)
	require.Empty(t, result.KeyPublicKey)

	err = wallet.VerifyMessage(wallet.VerifyMessageOpts{
		Message:   result.Message,
		Signature: result.WalletSignature,
		PublicKey: result.WalletPublicKey,
		Spec:      chain.MustGet(chain.IdentityChain),
	})
	require.NoError(t, err)

	state, ok := svc.State(req.RequestID)
	require.True(t, ok)
	require.Equal(t, domain.WkSignComplete, state)
	relay.AssertNotCalled(t, "PostAction", mock.Anything, mock.Anything)
}

func TestWkSignWalletPlusKey(t *testing.T) {
	relay := &mockRelay{}
	requestID := "wallet-plus-key"
	relay.On("PostAction", mock.Anything, mock.MatchedBy(
		func(req ports.AuthorizedActionRequest) bool {
			return req.RequestID == requestID && req.Action == "wksigning" &&
				req.Chain == string(chain.IdentityChain) && req.AuthFields != nil
		},
	)).Return(nil).Once()
	svc := newTestWkSignService(t, relay, 0)

	req := domain.WkSignRequest{
		RequestID:     requestID,
		Message:       newTestMessage(time.Now()),
		AuthMode:      domain.AuthModeWalletPlusKey,
		RequesterInfo: &domain.RequesterInfo{Origin: "https://example.org"},
	}
	done := signAsync(svc, req)
	waitForState(t, svc, requestID, domain.WkSignAwaitingCounterparty)

	signature, publicKey := keyDeviceSign(t, req.Message)
	accepted := svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigned,
		RequestID: requestID,
		Signature: signature,
		PublicKey: publicKey,
	})
	require.True(t, accepted)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, signature, res.result.KeySignature)
	require.Equal(t, publicKey, res.result.KeyPublicKey)
	require.NotEmpty(t, res.result.WalletSignature)
	require.Contains(t, res.result.WitnessScript, publicKey)
	require.Contains(t, res.result.WitnessScript, res.result.WalletPublicKey)

	state, _ := svc.State(requestID)
	require.Equal(t, domain.WkSignComplete, state)
	relay.AssertExpectations(t)

	// The envelope binds the hash of the posted request.
	posted := relay.Calls[0].Arguments.Get(1).(ports.AuthorizedActionRequest)
	var payload relayauth.Payload
	require.NoError(t, json.Unmarshal([]byte(posted.Message), &payload))
	dataHash, err := relayauth.DataHash(posted.ActionRequest)
	require.NoError(t, err)
	require.Equal(t, dataHash, payload.DataHash)
	require.Equal(t, relayauth.ActionAction, payload.Action)
	require.Equal(t, res.result.WkIdentity, payload.Identity)
	require.Contains(t, posted.Payload, "https://example.org")
}

func TestWkSignRejected(t *testing.T) {
	relay := &mockRelay{}
	relay.On("PostAction", mock.Anything, mock.Anything).Return(nil)
	svc := newTestWkSignService(t, relay, 0)

	requestID := "rejected"
	done := signAsync(svc, domain.WkSignRequest{
		RequestID: requestID,
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletPlusKey,
	})
	waitForState(t, svc, requestID, domain.WkSignAwaitingCounterparty)

	event := domain.PushEvent{
		Type:      domain.PushEventWkSigningRejected,
		RequestID: requestID,
		Reason:    "user declined",
	}
	require.True(t, svc.HandlePushEvent(event))

	res := <-done
	require.ErrorIs(t, res.err, domain.ErrWkSignRejected)
	require.Contains(t, res.err.Error(), "user declined")
	require.Nil(t, res.result)

	state, _ := svc.State(requestID)
	require.Equal(t, domain.WkSignRejected, state)

	// A duplicate delivery is a no-op.
	require.False(t, svc.HandlePushEvent(event))
	state, _ = svc.State(requestID)
	require.Equal(t, domain.WkSignRejected, state)
}

func TestWkSignIgnoresStalePushEvents(t *testing.T) {
	relay := &mockRelay{}
	relay.On("PostAction", mock.Anything, mock.Anything).Return(nil)
	svc := newTestWkSignService(t, relay, 0)

	requestID := "current"
	done := signAsync(svc, domain.WkSignRequest{
		RequestID: requestID,
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletPlusKey,
	})
	waitForState(t, svc, requestID, domain.WkSignAwaitingCounterparty)

	require.False(t, svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigningRejected,
		RequestID: "other",
	}))
	require.False(t, svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigned,
		RequestID: requestID,
	}))
	state, _ := svc.State(requestID)
	require.Equal(t, domain.WkSignAwaitingCounterparty, state)

	require.True(t, svc.Cancel(requestID))
	res := <-done
	require.ErrorIs(t, res.err, domain.ErrWkSignCancelled)
	state, _ = svc.State(requestID)
	require.Equal(t, domain.WkSignCancelled, state)

	require.False(t, svc.Cancel(requestID))
}

func TestWkSignInvalidCounterSignature(t *testing.T) {
	relay := &mockRelay{}
	relay.On("PostAction", mock.Anything, mock.Anything).Return(nil)
	svc := newTestWkSignService(t, relay, 0)

	requestID := "forged"
	message := newTestMessage(time.Now())
	done := signAsync(svc, domain.WkSignRequest{
		RequestID: requestID,
		Message:   message,
		AuthMode:  domain.AuthModeWalletPlusKey,
	})
	waitForState(t, svc, requestID, domain.WkSignAwaitingCounterparty)

	// Signed by the key device over a different message.
	signature, publicKey := keyDeviceSign(t, message+"x")
	require.True(t, svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigned,
		RequestID: requestID,
		Signature: signature,
		PublicKey: publicKey,
	}))

	res := <-done
	require.ErrorIs(t, res.err, domain.ErrInvalidCounterSignature)
	state, _ := svc.State(requestID)
	require.Equal(t, domain.WkSignFailed, state)
}

func TestWkSignSupersede(t *testing.T) {
	relay := &mockRelay{}
	relay.On("PostAction", mock.Anything, mock.Anything).Return(nil)
	svc := newTestWkSignService(t, relay, 0)

	first := signAsync(svc, domain.WkSignRequest{
		RequestID: "first",
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletPlusKey,
	})
	waitForState(t, svc, "first", domain.WkSignAwaitingCounterparty)

	message := newTestMessage(time.Now())
	second := signAsync(svc, domain.WkSignRequest{
		RequestID: "second",
		Message:   message,
		AuthMode:  domain.AuthModeWalletPlusKey,
	})

	res := <-first
	require.ErrorIs(t, res.err, domain.ErrWkSignSuperseded)
	require.ErrorIs(t, res.err, domain.ErrWkSignCancelled)
	state, _ := svc.State("first")
	require.Equal(t, domain.WkSignCancelled, state)

	waitForState(t, svc, "second", domain.WkSignAwaitingCounterparty)
	require.False(t, svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigningRejected,
		RequestID: "first",
	}))

	signature, publicKey := keyDeviceSign(t, message)
	require.True(t, svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigned,
		RequestID: "second",
		Signature: signature,
		PublicKey: publicKey,
	}))
	res = <-second
	require.NoError(t, res.err)
	require.Equal(t, signature, res.result.KeySignature)
}

func TestWkSignTimeout(t *testing.T) {
	relay := &mockRelay{}
	relay.On("PostAction", mock.Anything, mock.Anything).Return(nil)
	svc := newTestWkSignService(t, relay, 100*time.Millisecond)

	_, err := svc.Sign(ctx, domain.WkSignRequest{
		RequestID: "timeout",
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletPlusKey,
	})
	require.ErrorIs(t, err, domain.ErrWkSignTimeout)
	state, _ := svc.State("timeout")
	require.Equal(t, domain.WkSignFailed, state)

	// Deadline set by the caller.
	svc = newTestWkSignService(t, relay, 0)
	deadlineCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = svc.Sign(deadlineCtx, domain.WkSignRequest{
		RequestID: "caller-deadline",
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletPlusKey,
	})
	require.ErrorIs(t, err, domain.ErrWkSignTimeout)
}

func TestFailingWkSign(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		req      domain.WkSignRequest
		relayErr error
		err      error
	}{
		{
			name: "expired_message",
			req: domain.WkSignRequest{
				Message:  newTestMessage(now.Add(-time.Hour)),
				AuthMode: domain.AuthModeWalletPlusKey,
			},
			err: domain.ErrInvalidMessage,
		},
		{
			name: "future_message",
			req: domain.WkSignRequest{
				Message:  newTestMessage(now.Add(time.Hour)),
				AuthMode: domain.AuthModeWalletOnly,
			},
			err: domain.ErrInvalidMessage,
		},
		{
			name: "malformed_message",
			req: domain.WkSignRequest{
				Message:  "please sign me",
				AuthMode: domain.AuthModeWalletOnly,
			},
			err: domain.ErrInvalidMessage,
		},
		{
			name: "invalid_auth_mode",
			req: domain.WkSignRequest{
				Message:  newTestMessage(now),
				AuthMode: "keyOnly",
			},
			err: domain.ErrInvalidAuthMode,
		},
		{
			name: "relay_error",
			req: domain.WkSignRequest{
				Message:  newTestMessage(now),
				AuthMode: domain.AuthModeWalletPlusKey,
			},
			relayErr: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &mockRelay{}
			relay.On("PostAction", mock.Anything, mock.Anything).Return(tt.relayErr)
			svc := newTestWkSignService(t, relay, 0)
			tt.req.RequestID = tt.name

			_, err := svc.Sign(ctx, tt.req)
			require.Error(t, err)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				relay.AssertNotCalled(t, "PostAction", mock.Anything, mock.Anything)
			} else {
				require.ErrorIs(t, err, tt.relayErr)
				relay.AssertNumberOfCalls(t, "PostAction", 1)
			}

			state, ok := svc.State(tt.name)
			require.True(t, ok)
			require.Equal(t, domain.WkSignFailed, state)
		})
	}
}

func TestWkSignExpiredClassification(t *testing.T) {
	svc := newTestWkSignService(t, &mockRelay{}, 0)

	_, err := svc.Sign(ctx, domain.WkSignRequest{
		RequestID: "expired",
		Message:   newTestMessage(time.Now().Add(-16 * time.Minute)),
		AuthMode:  domain.AuthModeWalletOnly,
	})
	var merr *domain.MessageError
	require.True(t, errors.As(err, &merr))
	require.True(t, merr.IsExpired())
}

func TestWkSignRequestIDReused(t *testing.T) {
	svc := newTestWkSignService(t, &mockRelay{}, 0)
	req := domain.WkSignRequest{
		RequestID: "once",
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletOnly,
	}

	_, err := svc.Sign(ctx, req)
	require.NoError(t, err)

	_, err = svc.Sign(ctx, req)
	require.ErrorIs(t, err, domain.ErrRequestIDReused)

	// A failed request id is not reusable either.
	req.RequestID = "failed"
	req.Message = "malformed"
	_, err = svc.Sign(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)
	req.Message = newTestMessage(time.Now())
	_, err = svc.Sign(ctx, req)
	require.ErrorIs(t, err, domain.ErrRequestIDReused)

	// Missing ids are generated.
	req.RequestID = ""
	result, err := svc.Sign(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, result.RequestID)
}

func TestWkSignMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := application.NewMetrics(reg)
	require.NoError(t, err)

	_, err = application.NewMetrics(reg)
	require.Error(t, err)

	svc := newTestWkSignServiceWithMetrics(t, &mockRelay{}, 0, metrics)
	_, err = svc.Sign(ctx, domain.WkSignRequest{
		Message:  newTestMessage(time.Now()),
		AuthMode: domain.AuthModeWalletOnly,
	})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "ssp_wksign_requests_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			require.Equal(t, float64(1), f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}

func TestInvalidPushEventMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := application.NewMetrics(reg)
	require.NoError(t, err)
	svc := newTestWkSignServiceWithMetrics(t, &mockRelay{}, 0, metrics)

	for i := 0; i < 20; i++ {
		handled := svc.HandlePushEvent(domain.PushEvent{
			Type:      domain.PushEventType(randstr.Hex(8)),
			RequestID: randstr.Hex(8),
		})
		require.False(t, handled)
	}
	require.False(t, svc.HandlePushEvent(domain.PushEvent{
		Type:      domain.PushEventWkSigned,
		RequestID: "unknown",
		Signature: "sig",
	}))

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() != "ssp_wksign_push_events_total" {
			continue
		}
		found = true
		values := map[string]float64{}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "type" {
					values[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
		require.Equal(t, map[string]float64{
			"invalid":                        20,
			string(domain.PushEventWkSigned): 1,
		}, values)
	}
	require.True(t, found)
}

func TestWkSignHistory(t *testing.T) {
	hydration := newTestHydrationService(
		t, inmemory.NewSecureStore(), inmemory.NewCache(), password,
	)
	initTestWallet(t, hydration)
	syncTestChain(t, hydration, chain.IdentityChain)

	svc, err := application.NewWkSignService(application.WkSignServiceOpts{
		Identity:      hydration,
		Relay:         &mockRelay{},
		IdentityChain: chain.IdentityChain,
		Policy:        domain.DefaultMessagePolicy,
		HistorySize:   2,
	})
	require.NoError(t, err)

	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		_, err := svc.Sign(ctx, domain.WkSignRequest{
			RequestID: id,
			Message:   newTestMessage(time.Now()),
			AuthMode:  domain.AuthModeWalletOnly,
		})
		require.NoError(t, err)
	}

	_, ok := svc.State("first")
	require.False(t, ok)
	for _, id := range ids[1:] {
		state, ok := svc.State(id)
		require.True(t, ok)
		require.Equal(t, domain.WkSignComplete, state)
	}

	// Remembered ids are still rejected.
	_, err = svc.Sign(ctx, domain.WkSignRequest{
		RequestID: "third",
		Message:   newTestMessage(time.Now()),
		AuthMode:  domain.AuthModeWalletOnly,
	})
	require.ErrorIs(t, err, domain.ErrRequestIDReused)
}

type signResult struct {
	result *domain.WkSignResult
	err    error
}

func signAsync(
	svc application.WkSignService, req domain.WkSignRequest,
) chan signResult {
	done := make(chan signResult, 1)
	go func() {
		result, err := svc.Sign(ctx, req)
		done <- signResult{result, err}
	}()
	return done
}

func waitForState(
	t *testing.T, svc application.WkSignService,
	requestID string, expected domain.WkSignState,
) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, ok := svc.State(requestID)
		return ok && state == expected
	}, waitFor, 5*time.Millisecond)
}

func newTestMessage(ts time.Time) string {
	return fmt.Sprintf("%d%s", ts.UnixMilli(), randstr.Hex(32))
}

// keyDeviceSign signs message with the identity key of the key device.
func keyDeviceSign(t *testing.T, message string) (string, string) {
	t.Helper()
	spec := chain.MustGet(chain.IdentityChain)
	keys := testRootKeys(t, mnemonicKey, spec)

	privateKey, publicKey, err := wallet.DeriveLeafKeyPair(
		keys.Xpriv, wallet.Identity, 0,
	)
	require.NoError(t, err)
	defer privateKey.Zero()

	signature, err := wallet.SignMessage(wallet.SignMessageOpts{
		Message:    message,
		PrivateKey: privateKey,
		Spec:       spec,
	})
	require.NoError(t, err)
	return signature, fmt.Sprintf("%x", publicKey.SerializeCompressed())
}

func newTestWkSignService(
	t *testing.T, relay ports.Relay, timeout time.Duration,
) application.WkSignService {
	return newTestWkSignServiceWithMetrics(t, relay, timeout, nil)
}

func newTestWkSignServiceWithMetrics(
	t *testing.T, relay ports.Relay, timeout time.Duration,
	metrics *application.Metrics,
) application.WkSignService {
	t.Helper()
	hydration := newTestHydrationService(
		t, inmemory.NewSecureStore(), inmemory.NewCache(), password,
	)
	initTestWallet(t, hydration)
	syncTestChain(t, hydration, chain.IdentityChain)

	svc, err := application.NewWkSignService(application.WkSignServiceOpts{
		Identity:      hydration,
		Relay:         relay,
		IdentityChain: chain.IdentityChain,
		Policy:        domain.DefaultMessagePolicy,
		Timeout:       timeout,
		Metrics:       metrics,
	})
	require.NoError(t, err)
	return svc
}
