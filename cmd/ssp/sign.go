package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var signmessage = cli.Command{
	Name:  "signmessage",
	Usage: "sign a message with a wallet key",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{
			Name:     "message",
			Usage:    "the message to sign",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "wallet",
			Usage: "the wallet id in the form <type>-<index>, defaults to the one in use",
		},
	},
	Action: signMessageAction,
}

var signtx = cli.Command{
	Name:  "signtx",
	Usage: "add the wallet signature to a transaction spending multisig outputs",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{
			Name:     "tx",
			Usage:    "the hex encoded unsigned or partially signed transaction",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "utxos",
			Usage:    "path of the JSON file listing the spent outputs",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "wallet",
			Usage: "the wallet id in the form <type>-<index>, defaults to the one in use",
		},
	},
	Action: signTxAction,
}

var wif = cli.Command{
	Name:  "wif",
	Usage: "decode a WIF private key of a chain",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{
			Name:     "key",
			Usage:    "the WIF encoded private key",
			Required: true,
		},
	},
	Action: wifAction,
}

type utxo struct {
	Txid     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Satoshis int64  `json:"satoshis"`
	Script   string `json:"scriptPubKey,omitempty"`
}

func signMessageAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	typeIndex, addressIndex, data, err := walletInUse(ctx, svc, c)
	if err != nil {
		return err
	}

	spec := chain.MustGet(c)
	message := ctx.String("message")
	return svc.hydration.WithWalletXpriv(
		context.Background(), c, func(xpriv string) error {
			privateKey, publicKey, err := wallet.DeriveLeafKeyPair(
				xpriv, typeIndex, addressIndex,
			)
			if err != nil {
				return err
			}
			defer privateKey.Zero()

			signature, err := wallet.SignMessage(wallet.SignMessageOpts{
				Message:    message,
				PrivateKey: privateKey,
				Spec:       spec,
			})
			if err != nil {
				return err
			}

			printRespJSON(map[string]string{
				"address":   data.Address,
				"publicKey": fmt.Sprintf("%x", publicKey.SerializeCompressed()),
				"signature": signature,
			})
			return nil
		},
	)
}

func signTxAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}

	buf, err := os.ReadFile(ctx.String("utxos"))
	if err != nil {
		return fmt.Errorf("reading utxos file: %w", err)
	}
	var list []utxo
	if err := json.Unmarshal(buf, &list); err != nil {
		return fmt.Errorf("invalid utxos file: %w", err)
	}
	utxos := make([]wallet.Utxo, 0, len(list))
	for _, u := range list {
		utxos = append(utxos, wallet.Utxo{
			Txid:     u.Txid,
			Vout:     u.Vout,
			Satoshis: u.Satoshis,
			Script:   u.Script,
		})
	}

	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	typeIndex, addressIndex, data, err := walletInUse(ctx, svc, c)
	if err != nil {
		return err
	}

	spec := chain.MustGet(c)
	return svc.hydration.WithWalletXpriv(
		context.Background(), c, func(xpriv string) error {
			privateKey, _, err := wallet.DeriveLeafKeyPair(
				xpriv, typeIndex, addressIndex,
			)
			if err != nil {
				return err
			}
			defer privateKey.Zero()

			signedTx, err := wallet.SignTransaction(wallet.SignTransactionOpts{
				RawTx:         ctx.String("tx"),
				PrivateKey:    privateKey,
				RedeemScript:  data.RedeemScript,
				WitnessScript: data.WitnessScript,
				Utxos:         utxos,
				Spec:          spec,
			})
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Println(signedTx)
			return nil
		},
	)
}

func wifAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}

	privateKey, err := wallet.WIFToPrivateKey(ctx.String("key"), chain.MustGet(c))
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(privateKey)
	return nil
}

// walletInUse resolves the wallet selected with the --wallet flag, or the
// one in use of the synced chain.
func walletInUse(
	ctx *cli.Context, svc *services, c chain.Chain,
) (wallet.TypeIndex, uint32, *domain.WalletData, error) {
	state, err := svc.hydration.Activate(context.Background(), c)
	if err != nil {
		return 0, 0, nil, err
	}

	walletID := ctx.String("wallet")
	if len(walletID) <= 0 {
		walletID = state.WalletInUse
	}
	typeIndex, addressIndex, err := domain.ParseDerivationKey(walletID)
	if err != nil {
		return 0, 0, nil, err
	}

	data, err := svc.hydration.DeriveAddress(
		context.Background(), c, typeIndex, addressIndex,
	)
	if err != nil {
		return 0, 0, nil, err
	}
	return typeIndex, addressIndex, data, nil
}
