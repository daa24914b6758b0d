package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/core/ports"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/multisig"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"golang.org/x/sync/singleflight"
)

const walletSeedKey = "walletSeed"

// HydrationService brings the state of a chain to a usable point.
type HydrationService interface {
	// InitWallet stores the encrypted mnemonic every chain key is derived from.
	InitWallet(ctx context.Context, mnemonic []string) error
	Activate(ctx context.Context, c chain.Chain) (*domain.ChainState, error)
	SyncCounterparty(
		ctx context.Context, c chain.Chain, xpubKey string,
	) (*domain.ChainState, error)
	DeriveAddress(
		ctx context.Context, c chain.Chain,
		typeIndex wallet.TypeIndex, addressIndex uint32,
	) (*domain.WalletData, error)
	SwitchWallet(
		ctx context.Context, c chain.Chain, walletID string,
	) (*domain.ChainState, error)
	WithWalletXpriv(
		ctx context.Context, c chain.Chain, fn func(xpriv string) error,
	) error
	IdentityAuthorizer(ctx context.Context) (*relayauth.Authorizer, error)
	Reset(ctx context.Context)
}

type hydrationService struct {
	store         ports.SecureStore
	cache         ports.Cache
	cipher        ports.Cipher
	identityChain chain.Chain
	metrics       *Metrics

	group      singleflight.Group
	lock       *sync.RWMutex
	states     map[chain.Chain]*domain.ChainState
	chainLocks map[chain.Chain]*sync.Mutex
}

func NewHydrationService(
	store ports.SecureStore,
	cache ports.Cache,
	cipher ports.Cipher,
	identityChain chain.Chain,
	metrics *Metrics,
) HydrationService {
	return newHydrationService(store, cache, cipher, identityChain, metrics)
}

func newHydrationService(
	store ports.SecureStore,
	cache ports.Cache,
	cipher ports.Cipher,
	identityChain chain.Chain,
	metrics *Metrics,
) *hydrationService {
	return &hydrationService{
		store:         store,
		cache:         cache,
		cipher:        cipher,
		identityChain: identityChain,
		metrics:       metrics,
		lock:          &sync.RWMutex{},
		states:        map[chain.Chain]*domain.ChainState{},
		chainLocks:    map[chain.Chain]*sync.Mutex{},
	}
}

func (h *hydrationService) InitWallet(
	ctx context.Context, mnemonic []string,
) error {
	if !wallet.IsMnemonicValid(mnemonic) {
		return wallet.ErrInvalidMnemonic
	}
	encrypted, err := h.cipher.Encrypt(strings.Join(mnemonic, " "))
	if err != nil {
		return err
	}
	return h.store.Set(ctx, walletSeedKey, encrypted)
}

// Activate hydrates the state of the given chain. Concurrent activations of
// the same chain share a single hydration and its result. The shared
// hydration is not bound to the cancellation of the caller that started it.
func (h *hydrationService) Activate(
	ctx context.Context, c chain.Chain,
) (*domain.ChainState, error) {
	spec, err := chain.Get(c)
	if err != nil {
		return nil, err
	}

	hydrationCtx := context.WithoutCancel(ctx)
	ch := h.group.DoChan(string(c), func() (interface{}, error) {
		return h.activate(hydrationCtx, spec)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Shared {
		log.Debugf("hydration of chain %s shared with concurrent caller", c)
	}
	err = res.Err
	if res.Shared {
		log.Debugf("hydration of chain %s shared with concurrent caller", c)
	}
	h.metrics.hydration(string(c), hydrationResult(err))
	if err != nil {
		return nil, err
	}
	// The snapshot is shared by every waiting caller.
	return res.Val.(*domain.ChainState).Copy(), nil
}

func hydrationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrChainUnsynced):
		return "unsynced"
	case errors.Is(err, domain.ErrChainNeverSynced):
		return "never_synced"
	default:
		return "error"
	}
}

func (h *hydrationService) activate(
	ctx context.Context, spec chain.Spec,
) (*domain.ChainState, error) {
	chainLock := h.chainLock(spec.Chain)
	chainLock.Lock()
	defer chainLock.Unlock()

	state := h.getState(spec.Chain)
	if state == nil {
		state = domain.NewChainState(spec.Chain)
	}

	if !state.IsSynced() {
		if err := h.loadKeys(ctx, spec, state); err != nil {
			if len(state.XpubWallet) > 0 {
				h.setState(state)
			}
			return nil, err
		}
	}

	if err := h.restoreWallets(ctx, spec, state); err != nil {
		return nil, err
	}

	h.setState(state)
	log.Debugf("chain %s hydrated, wallet in use %s", spec.Chain, state.WalletInUse)
	return state.Copy(), nil
}

// loadKeys fills the extended public keys of state, either from the secure
// store or, on first activation, by deriving and persisting fresh ones.
func (h *hydrationService) loadKeys(
	ctx context.Context, spec chain.Spec, state *domain.ChainState,
) error {
	keys, err := newKeyNames(spec)
	if err != nil {
		return err
	}

	encryptedXpriv, err := h.store.Get(ctx, keys.xpriv)
	if err != nil {
		return err
	}
	encryptedXpub, err := h.store.Get(ctx, keys.xpub)
	if err != nil {
		return err
	}

	if len(encryptedXpriv) > 0 && len(encryptedXpub) > 0 {
		xpub, err := h.cipher.Decrypt(encryptedXpub)
		if err != nil {
			return &domain.ChainUnsyncedError{Chain: spec.Chain, Err: err}
		}
		state.XpubWallet = xpub
	} else {
		log.Infof("deriving fresh keys for chain %s", spec.Chain)
		xpub, err := h.deriveAndPersistKeys(ctx, spec, keys)
		if err != nil {
			return err
		}
		state.XpubWallet = xpub
	}

	encryptedXpubKey, err := h.store.Get(ctx, keys.xpubKey)
	if err != nil {
		return err
	}
	if len(encryptedXpubKey) <= 0 {
		return domain.ErrChainNeverSynced
	}
	xpubKey, err := h.cipher.Decrypt(encryptedXpubKey)
	if err != nil {
		return &domain.ChainUnsyncedError{Chain: spec.Chain, Err: err}
	}
	state.XpubKey = xpubKey
	return nil
}

func (h *hydrationService) deriveAndPersistKeys(
	ctx context.Context, spec chain.Spec, keys keyNames,
) (string, error) {
	encryptedMnemonic, err := h.store.Get(ctx, walletSeedKey)
	if err != nil {
		return "", err
	}
	if len(encryptedMnemonic) <= 0 {
		return "", domain.ErrWalletNotInitialized
	}
	mnemonic, err := h.cipher.Decrypt(encryptedMnemonic)
	if err != nil {
		return "", &domain.ChainUnsyncedError{Chain: spec.Chain, Err: err}
	}

	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return "", err
	}
	defer w.Zero()

	rootKeys, err := w.DeriveRootKeys(spec)
	if err != nil {
		return "", err
	}
	defer rootKeys.Zero()

	encryptedXpriv, err := h.cipher.Encrypt(rootKeys.Xpriv)
	if err != nil {
		return "", err
	}
	encryptedXpub, err := h.cipher.Encrypt(rootKeys.Xpub)
	if err != nil {
		return "", err
	}
	if err := h.store.Set(ctx, keys.xpriv, encryptedXpriv); err != nil {
		return "", err
	}
	if err := h.store.Set(ctx, keys.xpub, encryptedXpub); err != nil {
		return "", err
	}
	return rootKeys.Xpub, nil
}

// restoreWallets restores the cached address descriptors of the chain, the
// wallet in use and its caches, and derives the active address if missing.
func (h *hydrationService) restoreWallets(
	ctx context.Context, spec chain.Spec, state *domain.ChainState,
) error {
	cached := map[string]*domain.WalletData{}
	if _, err := h.cache.Get(ctx, walletsKey(spec.Chain), &cached); err != nil {
		return err
	}
	for k, w := range cached {
		if _, ok := state.Wallets[k]; !ok {
			state.Wallets[k] = w
		}
	}

	var walletInUse string
	if _, err := h.cache.Get(ctx, walletInUseKey(spec.Chain), &walletInUse); err != nil {
		return err
	}
	if _, _, err := domain.ParseDerivationKey(walletInUse); err != nil {
		if len(walletInUse) > 0 {
			log.Warnf(
				"invalid wallet in use %q for chain %s, using default",
				walletInUse, spec.Chain,
			)
		}
		walletInUse = domain.DefaultWalletInUse
	}
	state.WalletInUse = walletInUse

	if _, ok := state.ActiveWallet(); !ok {
		if _, err := h.deriveWallet(ctx, spec, state, walletInUse); err != nil {
			return err
		}
	}

	return h.loadWalletCaches(ctx, spec.Chain, state)
}

func (h *hydrationService) loadWalletCaches(
	ctx context.Context, c chain.Chain, state *domain.ChainState,
) error {
	active, _ := state.ActiveWallet()
	walletID := state.WalletInUse

	if _, err := h.cache.Get(ctx, blockheightKey(c), &state.BlockHeight); err != nil {
		return err
	}

	var txs []domain.Transaction
	found, err := h.cache.Get(ctx, transactionsKey(c, walletID), &txs)
	if err != nil {
		return err
	}
	if found {
		active.Transactions = txs
	}

	var balance domain.Balance
	found, err = h.cache.Get(ctx, balancesKey(c, walletID), &balance)
	if err != nil {
		return err
	}
	if found {
		active.Balance = balance.Confirmed
		active.UnconfirmedBalance = balance.Unconfirmed
	}

	var tokenBalances []domain.TokenBalance
	found, err = h.cache.Get(ctx, tokenBalancesKey(c, walletID), &tokenBalances)
	if err != nil {
		return err
	}
	if found {
		active.TokenBalances = tokenBalances
	}
	return nil
}

// deriveWallet derives the address descriptor stored under walletID and
// persists the descriptors of the chain back to the cache.
func (h *hydrationService) deriveWallet(
	ctx context.Context, spec chain.Spec, state *domain.ChainState,
	walletID string,
) (*domain.WalletData, error) {
	typeIndex, addressIndex, err := domain.ParseDerivationKey(walletID)
	if err != nil {
		return nil, err
	}

	descriptor, err := multisig.GenerateMultisigAddress(
		multisig.GenerateMultisigAddressOpts{
			XpubWallet:   state.XpubWallet,
			XpubKey:      state.XpubKey,
			TypeIndex:    typeIndex,
			AddressIndex: addressIndex,
			Spec:         spec,
		},
	)
	if err != nil {
		return nil, err
	}

	data := &domain.WalletData{
		Address:            descriptor.Address,
		RedeemScript:       descriptor.RedeemScript,
		WitnessScript:      descriptor.WitnessScript,
		Balance:            "0",
		UnconfirmedBalance: "0",
	}
	state.Wallets[walletID] = data

	if err := h.cache.Set(
		ctx, walletsKey(spec.Chain), state.Descriptors(),
	); err != nil {
		return nil, err
	}
	log.Debugf("derived address %s for chain %s", walletID, spec.Chain)
	return data, nil
}

// SyncCounterparty stores the extended public key shared by the key device
// and activates the chain. Pairing with a different key device drops the
// address descriptors and caches derived with the previous key.
func (h *hydrationService) SyncCounterparty(
	ctx context.Context, c chain.Chain, xpubKey string,
) (*domain.ChainState, error) {
	spec, err := chain.Get(c)
	if err != nil {
		return nil, err
	}
	if _, err := wallet.DeriveLeafPublicKey(xpubKey, wallet.Receive, 0); err != nil {
		return nil, err
	}
	keys, err := newKeyNames(spec)
	if err != nil {
		return nil, err
	}

	chainLock := h.chainLock(c)
	chainLock.Lock()
	err = h.storeCounterparty(ctx, spec.Chain, keys, xpubKey)
	chainLock.Unlock()
	if err != nil {
		return nil, err
	}

	return h.Activate(ctx, c)
}

// storeCounterparty must be called with the chain lock held.
func (h *hydrationService) storeCounterparty(
	ctx context.Context, c chain.Chain, keys keyNames, xpubKey string,
) error {
	previous, err := h.store.Get(ctx, keys.xpubKey)
	if err != nil {
		return err
	}
	changed := true
	if len(previous) > 0 {
		if old, err := h.cipher.Decrypt(previous); err == nil && old == xpubKey {
			changed = false
		}
	}

	encrypted, err := h.cipher.Encrypt(xpubKey)
	if err != nil {
		return err
	}
	if err := h.store.Set(ctx, keys.xpubKey, encrypted); err != nil {
		return err
	}

	if changed {
		if err := h.dropWallets(ctx, c); err != nil {
			return err
		}
	}
	if state := h.getState(c); state != nil {
		state.XpubKey = ""
		if changed {
			state.Wallets = map[string]*domain.WalletData{}
			state.WalletInUse = ""
		}
	}
	return nil
}

// dropWallets deletes the cached descriptors of the chain along with the
// wallet in use and the per-wallet caches.
func (h *hydrationService) dropWallets(ctx context.Context, c chain.Chain) error {
	cached := map[string]*domain.WalletData{}
	if _, err := h.cache.Get(ctx, walletsKey(c), &cached); err != nil {
		return err
	}

	keys := []string{walletsKey(c), walletInUseKey(c)}
	for walletID := range cached {
		keys = append(
			keys,
			transactionsKey(c, walletID),
			balancesKey(c, walletID),
			tokenBalancesKey(c, walletID),
		)
	}
	for _, key := range keys {
		if err := h.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	if len(cached) > 0 {
		log.Infof("counterparty of chain %s changed, dropped %d cached wallets", c, len(cached))
	}
	return nil
}

// DeriveAddress derives and caches the address at typeIndex/addressIndex of
// an activated chain.
func (h *hydrationService) DeriveAddress(
	ctx context.Context, c chain.Chain,
	typeIndex wallet.TypeIndex, addressIndex uint32,
) (*domain.WalletData, error) {
	spec, err := chain.Get(c)
	if err != nil {
		return nil, err
	}
	walletID := domain.DerivationKey(typeIndex, addressIndex)
	if _, _, err := domain.ParseDerivationKey(walletID); err != nil {
		return nil, err
	}

	chainLock := h.chainLock(c)
	chainLock.Lock()
	defer chainLock.Unlock()

	state, err := h.syncedState(c)
	if err != nil {
		return nil, err
	}
	if w, ok := state.Wallets[walletID]; ok && w != nil && len(w.Address) > 0 {
		return w.Copy(), nil
	}
	w, err := h.deriveWallet(ctx, spec, state, walletID)
	if err != nil {
		return nil, err
	}
	return w.Copy(), nil
}

// SwitchWallet makes walletID the wallet in use of an activated chain.
func (h *hydrationService) SwitchWallet(
	ctx context.Context, c chain.Chain, walletID string,
) (*domain.ChainState, error) {
	spec, err := chain.Get(c)
	if err != nil {
		return nil, err
	}
	if _, _, err := domain.ParseDerivationKey(walletID); err != nil {
		return nil, err
	}

	chainLock := h.chainLock(c)
	chainLock.Lock()
	defer chainLock.Unlock()

	state, err := h.syncedState(c)
	if err != nil {
		return nil, err
	}
	state.WalletInUse = walletID
	if _, ok := state.ActiveWallet(); !ok {
		if _, err := h.deriveWallet(ctx, spec, state, walletID); err != nil {
			return nil, err
		}
	}
	if err := h.cache.Set(ctx, walletInUseKey(c), walletID); err != nil {
		return nil, err
	}
	if err := h.loadWalletCaches(ctx, c, state); err != nil {
		return nil, err
	}
	return state.Copy(), nil
}

// WithWalletXpriv decrypts the wallet extended private key of the chain and
// hands it to fn. The key is not retained after fn returns.
func (h *hydrationService) WithWalletXpriv(
	ctx context.Context, c chain.Chain, fn func(xpriv string) error,
) error {
	spec, err := chain.Get(c)
	if err != nil {
		return err
	}
	keys, err := newKeyNames(spec)
	if err != nil {
		return err
	}
	encrypted, err := h.store.Get(ctx, keys.xpriv)
	if err != nil {
		return err
	}
	if len(encrypted) <= 0 {
		return domain.ErrChainNeverSynced
	}
	xpriv, err := h.cipher.Decrypt(encrypted)
	if err != nil {
		return &domain.ChainUnsyncedError{Chain: c, Err: err}
	}
	return fn(xpriv)
}

// IdentityAuthorizer returns the relay authorizer of the wallet identity.
// Callers must Zero it once done.
func (h *hydrationService) IdentityAuthorizer(
	ctx context.Context,
) (*relayauth.Authorizer, error) {
	state, err := h.Activate(ctx, h.identityChain)
	if err != nil {
		return nil, err
	}
	spec, _ := chain.Get(h.identityChain)

	var authorizer *relayauth.Authorizer
	if err := h.WithWalletXpriv(
		ctx, h.identityChain, func(xpriv string) error {
			a, err := relayauth.NewAuthorizer(relayauth.NewAuthorizerOpts{
				XprivWallet: xpriv,
				XpubWallet:  state.XpubWallet,
				XpubKey:     state.XpubKey,
				Spec:        spec,
			})
			authorizer = a
			return err
		},
	); err != nil {
		return nil, err
	}
	return authorizer, nil
}

// Reset drops the in-memory state of every chain.
func (h *hydrationService) Reset(_ context.Context) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.states = map[chain.Chain]*domain.ChainState{}
	log.Debug("in-memory chain states reset")
}

func (h *hydrationService) syncedState(c chain.Chain) (*domain.ChainState, error) {
	state := h.getState(c)
	if state == nil || !state.IsSynced() {
		return nil, fmt.Errorf("chain %s not activated: %w", c, domain.ErrChainNeverSynced)
	}
	return state, nil
}

func (h *hydrationService) getState(c chain.Chain) *domain.ChainState {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.states[c]
}

func (h *hydrationService) setState(state *domain.ChainState) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.states[state.Chain] = state
}

func (h *hydrationService) chainLock(c chain.Chain) *sync.Mutex {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.chainLocks[c]; !ok {
		h.chainLocks[c] = &sync.Mutex{}
	}
	return h.chainLocks[c]
}
