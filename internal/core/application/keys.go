package application

import (
	"fmt"

	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

// keyNames are the secure store keys of a chain's extended keys.
type keyNames struct {
	xpriv   string
	xpub    string
	xpubKey string
}

func newKeyNames(spec chain.Spec) (keyNames, error) {
	scriptTypeIndex, err := spec.ScriptTypeIndex()
	if err != nil {
		return keyNames{}, err
	}
	suffix := fmt.Sprintf(
		"%d-%d-0-%d-%s", wallet.Purpose, spec.CoinSlip, scriptTypeIndex, spec.Chain,
	)
	return keyNames{
		xpriv:   "xpriv-" + suffix,
		xpub:    "xpub-" + suffix,
		xpubKey: "2-xpub-" + suffix,
	}, nil
}

func walletsKey(c chain.Chain) string {
	return fmt.Sprintf("wallets-%s", c)
}

func walletInUseKey(c chain.Chain) string {
	return fmt.Sprintf("walletInUse-%s", c)
}

func transactionsKey(c chain.Chain, walletID string) string {
	return fmt.Sprintf("transactions-%s-%s", c, walletID)
}

func balancesKey(c chain.Chain, walletID string) string {
	return fmt.Sprintf("balances-%s-%s", c, walletID)
}

func tokenBalancesKey(c chain.Chain, walletID string) string {
	return fmt.Sprintf("tokenBalances-%s-%s", c, walletID)
}

func blockheightKey(c chain.Chain) string {
	return fmt.Sprintf("blockheight-%s", c)
}
