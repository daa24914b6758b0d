package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ssp-wallet/ssp-core/internal/config"
	"github.com/ssp-wallet/ssp-core/internal/core/application"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/infrastructure/relay"
	"github.com/urfave/cli/v2"
)

var cosign = cli.Command{
	Name:  "cosign",
	Usage: "add the wallet partial Schnorr signature to a smart account operation",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{
			Name:     "message",
			Usage:    "the hex encoded operation hash to sign",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "knonce",
			Usage:    "the hex encoded first public nonce of the key device",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "ktwononce",
			Usage:    "the hex encoded second public nonce of the key device",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "wallet",
			Usage: "the wallet id in the form <type>-<index>, defaults to the one in use",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "the request id, a fresh one is generated if empty",
		},
	},
	Action: coSignAction,
}

func coSignAction(ctx *cli.Context) error {
	c, err := getChain(ctx)
	if err != nil {
		return err
	}
	message, err := hex.DecodeString(ctx.String("message"))
	if err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	relayClient, err := relay.NewClient(relay.ClientOpts{
		URL:            config.GetString(config.RelayURLKey),
		RequestTimeout: config.GetDuration(config.RelayTimeoutKey),
		RateLimit:      config.GetInt(config.RelayRateLimitKey),
	})
	if err != nil {
		return err
	}

	result, err := application.NewCoSignService(svc.hydration, relayClient).CoSign(
		context.Background(), c, domain.CoSignRequest{
			RequestID: ctx.String("id"),
			WalletID:  ctx.String("wallet"),
			Message:   message,
			KeyNonces: domain.PublicNonces{
				KPublic:    ctx.String("knonce"),
				KTwoPublic: ctx.String("ktwononce"),
			},
		},
	)
	if err != nil {
		return err
	}

	printRespJSON(result)
	return nil
}
