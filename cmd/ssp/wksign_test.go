package main

import (
	"context"
	"errors"
	"testing"

	"github.com/ssp-wallet/ssp-core/internal/core/application"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/stretchr/testify/require"
)

type stubWkSignService struct {
	application.WkSignService
	result *domain.WkSignResult
	err    error
}

func (s stubWkSignService) Sign(
	_ context.Context, req domain.WkSignRequest,
) (*domain.WkSignResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestHandlePopup(t *testing.T) {
	req := domain.WkSignRequest{
		Message:  "1735689600000challenge",
		AuthMode: domain.AuthModeWalletOnly,
	}

	tests := []struct {
		name         string
		method       string
		params       interface{}
		svc          stubWkSignService
		expectedCode application.RejectCode
	}{
		{
			name:   "approved",
			method: wkSignMethod,
			params: req,
			svc: stubWkSignService{
				result: &domain.WkSignResult{RequestID: "id", Message: req.Message},
			},
		},
		{
			name:         "sign failure",
			method:       wkSignMethod,
			params:       req,
			svc:          stubWkSignService{err: errors.New("boom")},
			expectedCode: application.RejectCodeInternal,
		},
		{
			name:         "unsupported method",
			method:       "eth_sendTransaction",
			params:       req,
			expectedCode: application.RejectCodeInternal,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			broker := application.NewRequestBroker()
			responses := make(chan application.Response, 1)
			_, err := broker.Submit(application.ExternalRequest{
				Method: tt.method,
				Params: tt.params,
			}, func(res application.Response) {
				responses <- res
			})
			require.NoError(t, err)

			handlePopup(context.Background(), broker, tt.svc, true)

			res := <-responses
			if tt.expectedCode != 0 {
				require.NotNil(t, res.Err)
				require.Equal(t, tt.expectedCode, res.Err.Code)
				return
			}
			require.Nil(t, res.Err)
			require.Equal(t, tt.svc.result, res.Result)

			_, ok := broker.Pending()
			require.False(t, ok)
		})
	}
}

func TestNewChainInfo(t *testing.T) {
	state := domain.NewChainState(chain.Bitcoin)
	state.XpubWallet = "xpubWallet"
	state.XpubKey = "xpubKey"
	state.WalletInUse = "1-0"
	state.Wallets["1-0"] = &domain.WalletData{
		Address: "bc1qchange",
		Balance: "150000000",
	}
	state.Wallets["0-0"] = &domain.WalletData{Address: "bc1qreceive"}

	info := newChainInfo(state)
	require.Equal(t, []string{"0-0", "1-0"}, info.Wallets)
	require.Equal(t, "bc1qchange", info.Address)
	require.Equal(t, "1.5", info.Balance)
}
