package application

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
	"github.com/ssp-wallet/ssp-core/pkg/schnorr"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

const coSignRelayAction = "evmsigning"

// CoSignService produces the wallet partial signature of EVM smart account
// operations and forwards it to the key device through the relay.
type CoSignService interface {
	CoSign(
		ctx context.Context, c chain.Chain, req domain.CoSignRequest,
	) (*domain.CoSignResult, error)
}

type coSignService struct {
	hydration HydrationService
	relay     ports.Relay
}

func NewCoSignService(
	hydration HydrationService, relay ports.Relay,
) CoSignService {
	return &coSignService{hydration, relay}
}

func (s *coSignService) CoSign(
	ctx context.Context, c chain.Chain, req domain.CoSignRequest,
) (*domain.CoSignResult, error) {
	spec, err := chain.Get(c)
	if err != nil {
		return nil, err
	}
	if !spec.IsEVM() {
		return nil, fmt.Errorf("%w: %s", domain.ErrCoSignUnsupportedChain, c)
	}
	if len(req.Message) <= 0 {
		return nil, domain.ErrNullCoSignMessage
	}
	keyNonces, err := parsePublicNonces(req.KeyNonces)
	if err != nil {
		return nil, err
	}
	if len(req.RequestID) <= 0 {
		req.RequestID = uuid.New().String()
	}

	state, err := s.hydration.Activate(ctx, c)
	if err != nil {
		return nil, err
	}
	walletID := req.WalletID
	if len(walletID) <= 0 {
		walletID = state.WalletInUse
	}
	typeIndex, addressIndex, err := domain.ParseDerivationKey(walletID)
	if err != nil {
		return nil, err
	}
	account, err := s.hydration.DeriveAddress(ctx, c, typeIndex, addressIndex)
	if err != nil {
		return nil, err
	}
	keyPublicKey, err := wallet.DeriveLeafPublicKey(
		state.XpubKey, typeIndex, addressIndex,
	)
	if err != nil {
		return nil, err
	}

	var result *domain.CoSignResult
	if err := s.hydration.WithWalletXpriv(ctx, c, func(xpriv string) error {
		privateKey, publicKey, err := wallet.DeriveLeafKeyPair(
			xpriv, typeIndex, addressIndex,
		)
		if err != nil {
			return err
		}
		defer privateKey.Zero()

		session, err := schnorr.NewSession(privateKey)
		if err != nil {
			return err
		}
		walletNonces := session.PublicNonces()
		partial, err := session.Sign(
			req.Message,
			[]*btcec.PublicKey{publicKey, keyPublicKey},
			[]schnorr.PublicNonces{walletNonces, keyNonces},
		)
		if err != nil {
			return err
		}

		result = &domain.CoSignResult{
			RequestID:       req.RequestID,
			Address:         account.Address,
			Message:         hex.EncodeToString(req.Message),
			WalletPublicKey: hex.EncodeToString(publicKey.SerializeCompressed()),
			WalletNonces: domain.PublicNonces{
				KPublic:    hex.EncodeToString(walletNonces.KPublic.SerializeCompressed()),
				KTwoPublic: hex.EncodeToString(walletNonces.KTwoPublic.SerializeCompressed()),
			},
			PartialSignature:  hex.EncodeToString(partial.Signature[:]),
			Challenge:         hex.EncodeToString(partial.Challenge[:]),
			FinalNonce:        hex.EncodeToString(partial.FinalNonce.SerializeCompressed()),
			CombinedPublicKey: hex.EncodeToString(partial.CombinedPublicKey.SerializeCompressed()),
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.publish(ctx, spec, walletID, result); err != nil {
		return nil, err
	}
	log.Debugf("co-sign request %s for %s published", result.RequestID, result.Address)
	return result, nil
}

func (s *coSignService) publish(
	ctx context.Context, spec chain.Spec, walletID string,
	result *domain.CoSignResult,
) error {
	authorizer, err := s.hydration.IdentityAuthorizer(ctx)
	if err != nil {
		return err
	}
	defer authorizer.Zero()

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	actionReq := ports.ActionRequest{
		Chain:      string(spec.Chain),
		WkIdentity: authorizer.Identity(),
		Action:     coSignRelayAction,
		Payload:    string(payload),
		Path:       walletID,
		RequestID:  result.RequestID,
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

func parsePublicNonces(nonces domain.PublicNonces) (schnorr.PublicNonces, error) {
	parse := func(s string) (*btcec.PublicKey, error) {
		buf, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPublicNonces, err)
		}
		key, err := btcec.ParsePubKey(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPublicNonces, err)
		}
		return key, nil
	}

	kPublic, err := parse(nonces.KPublic)
	if err != nil {
		return schnorr.PublicNonces{}, err
	}
	kTwoPublic, err := parse(nonces.KTwoPublic)
	if err != nil {
		return schnorr.PublicNonces{}, err
	}
	return schnorr.PublicNonces{KPublic: kPublic, KTwoPublic: kTwoPublic}, nil
}
