package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

// DefaultWalletInUse is the derivation key of the first receiving address.
const DefaultWalletInUse = "0-0"

// Transaction is a cached transaction of a wallet address.
type Transaction struct {
	Txid          string `json:"txid"`
	BlockHeight   int64  `json:"blockheight"`
	Timestamp     int64  `json:"timestamp"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	Receiver      string `json:"receiver,omitempty"`
	Message       string `json:"message,omitempty"`
	Confirmations int64  `json:"confirmations"`
}

// Balance is the cached balance of a wallet address, in base units.
type Balance struct {
	Confirmed   string `json:"confirmed"`
	Unconfirmed string `json:"unconfirmed"`
}

// TokenBalance is the cached balance of an EVM token held by a smart account.
type TokenBalance struct {
	Contract string `json:"contract"`
	Balance  string `json:"balance"`
}

// WalletData is the state of one derived address of a chain.
type WalletData struct {
	Address            string         `json:"address"`
	RedeemScript       string         `json:"redeemScript,omitempty"`
	WitnessScript      string         `json:"witnessScript,omitempty"`
	Balance            string         `json:"balance"`
	UnconfirmedBalance string         `json:"unconfirmedBalance"`
	Transactions       []Transaction  `json:"transactions,omitempty"`
	TokenBalances      []TokenBalance `json:"tokenBalances,omitempty"`
}

// Copy returns a deep copy of the wallet data.
func (w *WalletData) Copy() *WalletData {
	if w == nil {
		return nil
	}
	c := *w
	c.Transactions = append([]Transaction(nil), w.Transactions...)
	c.TokenBalances = append([]TokenBalance(nil), w.TokenBalances...)
	return &c
}

// ChainState is the in-memory state of an activated chain.
type ChainState struct {
	Chain       chain.Chain
	XpubWallet  string
	XpubKey     string
	WalletInUse string
	Wallets     map[string]*WalletData
	// BlockHeight is the last chain tip seen by the cached transactions.
	BlockHeight int64
}

// NewChainState returns the empty state of a never activated chain.
func NewChainState(c chain.Chain) *ChainState {
	return &ChainState{
		Chain:       c,
		WalletInUse: DefaultWalletInUse,
		Wallets:     map[string]*WalletData{},
	}
}

// IsSynced returns whether both parties' extended public keys are known.
func (s *ChainState) IsSynced() bool {
	return len(s.XpubWallet) > 0 && len(s.XpubKey) > 0
}

// ActiveWallet returns the data of the wallet in use, if derived.
func (s *ChainState) ActiveWallet() (*WalletData, bool) {
	w, ok := s.Wallets[s.WalletInUse]
	return w, ok && w != nil && len(w.Address) > 0
}

// Copy returns a deep copy of the state.
func (s *ChainState) Copy() *ChainState {
	if s == nil {
		return nil
	}
	c := *s
	c.Wallets = make(map[string]*WalletData, len(s.Wallets))
	for k, w := range s.Wallets {
		c.Wallets[k] = w.Copy()
	}
	return &c
}

// Descriptors returns the address descriptors of the state without the
// cached balances and transactions.
func (s *ChainState) Descriptors() map[string]*WalletData {
	descriptors := make(map[string]*WalletData, len(s.Wallets))
	for k, w := range s.Wallets {
		if w == nil {
			continue
		}
		descriptors[k] = &WalletData{
			Address:       w.Address,
			RedeemScript:  w.RedeemScript,
			WitnessScript: w.WitnessScript,
		}
	}
	return descriptors
}

// DerivationKey returns the "<typeIndex>-<addressIndex>" key a wallet is
// stored under.
func DerivationKey(typeIndex wallet.TypeIndex, addressIndex uint32) string {
	return fmt.Sprintf("%d-%d", typeIndex, addressIndex)
}

// ParseDerivationKey is the inverse of DerivationKey.
func ParseDerivationKey(key string) (wallet.TypeIndex, uint32, error) {
	parts := strings.Split(key, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDerivationKey, key)
	}
	typeIndex, err := strconv.ParseUint(parts[0], 10, 31)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDerivationKey, key)
	}
	addressIndex, err := strconv.ParseUint(parts[1], 10, 31)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDerivationKey, key)
	}

	t := wallet.TypeIndex(typeIndex)
	if t != wallet.Receive && t != wallet.Change {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDerivationKey, key)
	}
	return t, uint32(addressIndex), nil
}
