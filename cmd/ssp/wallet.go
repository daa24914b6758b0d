package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var genseed = cli.Command{
	Name:  "genseed",
	Usage: "generate a mnemonic seed",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "entropy",
			Usage: "the entropy size in bits, one of 128, 160, 192, 224, 256",
			Value: 256,
		},
	},
	Action: genSeedAction,
}

var initwallet = cli.Command{
	Name:  "init",
	Usage: "store the encrypted mnemonic every chain key is derived from",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "seed",
			Usage:    "the mnemonic seed of the wallet",
			Required: true,
		},
	},
	Action: initWalletAction,
}

var activate = cli.Command{
	Name:   "activate",
	Usage:  "load the keys and the wallets of a chain",
	Flags:  []cli.Flag{chainFlag},
	Action: activateAction,
}

var syncwallet = cli.Command{
	Name:  "sync",
	Usage: "pair a chain with the extended public key of the key device",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{
			Name:     "xpub",
			Usage:    "the extended public key of the key device",
			Required: true,
		},
	},
	Action: syncAction,
}

var xpub = cli.Command{
	Name:   "xpub",
	Usage:  "show the wallet extended public key of a chain",
	Flags:  []cli.Flag{chainFlag},
	Action: xpubAction,
}

var address = cli.Command{
	Name:  "address",
	Usage: "derive a multisig address of a synced chain",
	Flags: []cli.Flag{
		chainFlag,
		&cli.UintFlag{
			Name:  "type",
			Usage: "the derivation type, 0 for receive and 1 for change",
		},
		&cli.UintFlag{
			Name:  "index",
			Usage: "the address index",
		},
	},
	Action: addressAction,
}

var switchwallet = cli.Command{
	Name:  "switch",
	Usage: "select the wallet in use of a synced chain",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{
			Name:     "wallet",
			Usage:    "the wallet id in the form <type>-<index>",
			Required: true,
		},
	},
	Action: switchWalletAction,
}

func genSeedAction(ctx *cli.Context) error {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{
		EntropySize: ctx.Int("entropy"),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(strings.Join(mnemonic, " "))

	return nil
}

func initWalletAction(ctx *cli.Context) error {
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mnemonic := strings.Fields(ctx.String("seed"))
	if err := svc.hydration.InitWallet(context.Background(), mnemonic); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("wallet initialized")
	return nil
}

func activateAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := svc.hydration.Activate(context.Background(), c)
	if err != nil {
		if errors.Is(err, domain.ErrChainNeverSynced) {
			return fmt.Errorf("%w: pair it with 'ssp sync'", err)
		}
		return err
	}

	printRespJSON(newChainInfo(state))
	return nil
}

func syncAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := svc.hydration.SyncCounterparty(
		context.Background(), c, ctx.String("xpub"),
	)
	if err != nil {
		return err
	}

	printRespJSON(newChainInfo(state))
	return nil
}

func xpubAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// A never synced chain still gets its keys derived and persisted, the
	// wallet xpub is what the key device needs to pair.
	if _, err := svc.hydration.Activate(
		context.Background(), c,
	); err != nil && !errors.Is(err, domain.ErrChainNeverSynced) {
		return err
	}

	spec := chain.MustGet(c)
	return svc.hydration.WithWalletXpriv(
		context.Background(), c, func(xpriv string) error {
			xpubWallet, err := wallet.NeuterExtendedKey(xpriv, spec)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(xpubWallet)
			return nil
		},
	)
}

func addressAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := svc.hydration.DeriveAddress(
		context.Background(), c,
		wallet.TypeIndex(ctx.Uint("type")), uint32(ctx.Uint("index")),
	)
	if err != nil {
		return err
	}

	printRespJSON(data)
	return nil
}

func switchWalletAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := svc.hydration.SwitchWallet(
		context.Background(), c, ctx.String("wallet"),
	)
	if err != nil {
		return err
	}

	printRespJSON(newChainInfo(state))
	return nil
}

type chainInfo struct {
	Chain       chain.Chain        `json:"chain"`
	XpubWallet  string             `json:"xpubWallet"`
	XpubKey     string             `json:"xpubKey"`
	WalletInUse string             `json:"walletInUse"`
	Address     string             `json:"address,omitempty"`
	Balance     string             `json:"balance,omitempty"`
	Wallets     []string           `json:"wallets"`
	Active      *domain.WalletData `json:"activeWallet,omitempty"`
}

func newChainInfo(state *domain.ChainState) chainInfo {
	info := chainInfo{
		Chain:       state.Chain,
		XpubWallet:  state.XpubWallet,
		XpubKey:     state.XpubKey,
		WalletInUse: state.WalletInUse,
		Wallets:     make([]string, 0, len(state.Wallets)),
	}
	for id := range state.Wallets {
		info.Wallets = append(info.Wallets, id)
	}
	sort.Strings(info.Wallets)
	if active, ok := state.ActiveWallet(); ok {
		spec := chain.MustGet(state.Chain)
		info.Address = active.Address
		info.Balance = spec.FormatAmount(active.Balance)
		info.Active = active
	}
	return info
}
