package relayauth

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mnemonicWallet = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	mnemonicKey    = "legal winner thank year wave sausage worth useful legal winner thank yellow"
)

func TestAuthorize(t *testing.T) {
	authorizer := newTestAuthorizer(t)
	spec := chain.MustGet(chain.IdentityChain)

	assert.True(t, strings.HasPrefix(authorizer.Identity(), "bc1q"))
	assert.Contains(t, authorizer.WitnessScript(), authorizer.PublicKey())

	body := map[string]interface{}{
		"chain":   "btc",
		"payload": "0200000001",
	}

	tests := []struct {
		action Action
		body   interface{}
	}{
		{ActionSync, nil},
		{ActionAction, body},
		{ActionToken, nil},
		{ActionJoin, body},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			fields, err := authorizer.Authorize(tt.action, tt.body)
			require.NoError(t, err)
			assert.Equal(t, authorizer.PublicKey(), fields.PublicKey)
			assert.Equal(t, authorizer.WitnessScript(), fields.WitnessScript)

			var payload Payload
			require.NoError(t, json.Unmarshal([]byte(fields.Message), &payload))
			assert.Equal(t, tt.action, payload.Action)
			assert.Equal(t, authorizer.Identity(), payload.Identity)
			assert.GreaterOrEqual(t, len(payload.Nonce), nonceLength)
			assert.InDelta(t, time.Now().UnixMilli(), payload.Timestamp, 60000)
			if tt.body == nil {
				assert.Empty(t, payload.DataHash)
				assert.NotContains(t, fields.Message, "dataHash")
			} else {
				expected, err := DataHash(tt.body)
				require.NoError(t, err)
				assert.Equal(t, expected, payload.DataHash)
			}

			err = wallet.VerifyMessage(wallet.VerifyMessageOpts{
				Message:   fields.Message,
				Signature: fields.Signature,
				PublicKey: fields.PublicKey,
				Spec:      spec,
			})
			assert.NoError(t, err)
		})
	}
}

func TestAuthorizeDeterministicPayload(t *testing.T) {
	authorizer := newTestAuthorizer(t)
	authorizer.now = func() time.Time { return time.UnixMilli(1700000000000) }
	authorizer.nonce = func() string { return "abcd" }

	fields, err := authorizer.Authorize(ActionSync, map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)

	dataHash, err := DataHash(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	expected := `{"timestamp":1700000000000,"action":"sync","identity":"` +
		authorizer.Identity() + `","nonce":"abcd","dataHash":"` + dataHash + `"}`
	assert.Equal(t, expected, fields.Message)
}

func TestAuthorizeBindsBody(t *testing.T) {
	authorizer := newTestAuthorizer(t)

	first, err := authorizer.Authorize(ActionAction, map[string]string{"tx": "01"})
	require.NoError(t, err)
	second, err := authorizer.Authorize(ActionAction, map[string]string{"tx": "02"})
	require.NoError(t, err)

	var p1, p2 Payload
	require.NoError(t, json.Unmarshal([]byte(first.Message), &p1))
	require.NoError(t, json.Unmarshal([]byte(second.Message), &p2))
	assert.NotEqual(t, p1.DataHash, p2.DataHash)
	assert.NotEqual(t, p1.Nonce, p2.Nonce)
}

func TestFailingAuthorize(t *testing.T) {
	authorizer := newTestAuthorizer(t)

	_, err := authorizer.Authorize("delete", nil)
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = authorizer.Authorize(ActionSync, make(chan int))
	assert.Error(t, err)

	authorizer.Zero()
	_, err = authorizer.Authorize(ActionSync, nil)
	assert.Equal(t, ErrAuthorizerZeroed, err)
}

func TestFailingNewAuthorizer(t *testing.T) {
	spec := chain.MustGet(chain.IdentityChain)

	_, err := NewAuthorizer(NewAuthorizerOpts{XpubKey: "xpub", Spec: spec})
	assert.Equal(t, ErrNullXprivWallet, err)

	_, err = NewAuthorizer(NewAuthorizerOpts{XprivWallet: "xprv", Spec: spec})
	assert.Equal(t, ErrNullXpubKey, err)
}

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	spec := chain.MustGet(chain.IdentityChain)

	keys := make([]*wallet.ExtendedKeyPair, 0, 2)
	for _, mnemonic := range []string{mnemonicWallet, mnemonicKey} {
		w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
			Mnemonic: mnemonic,
		})
		require.NoError(t, err)
		k, err := w.DeriveRootKeys(spec)
		require.NoError(t, err)
		keys = append(keys, k)
	}

	authorizer, err := NewAuthorizer(NewAuthorizerOpts{
		XprivWallet: keys[0].Xpriv,
		XpubKey:     keys[1].Xpub,
		Spec:        spec,
	})
	require.NoError(t, err)
	return authorizer
}
