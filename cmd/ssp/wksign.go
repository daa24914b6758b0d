package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/config"
	"github.com/ssp-wallet/ssp-core/internal/core/application"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/internal/infrastructure/relay"
	"github.com/ssp-wallet/ssp-core/pkg/relayauth"
	"github.com/ssp-wallet/ssp-core/pkg/stats"
	"github.com/thanhpk/randstr"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const wkSignMethod = "wk_sign"

var wksign = cli.Command{
	Name:  "wksign",
	Usage: "sign a login challenge with the wallet identity",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "message",
			Usage: "the challenge, <ms timestamp><challenge>; a fresh one is generated if empty",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "the auth mode, walletOnly or walletPlusKey",
			Value: string(domain.AuthModeWalletPlusKey),
		},
		&cli.StringFlag{
			Name:  "origin",
			Usage: "the origin of the requesting site",
		},
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "approve the request without prompting",
		},
		&cli.StringFlag{
			Name:  "stats",
			Usage: "path of the file where the collected metrics are appended",
		},
	},
	Action: wkSignAction,
}

func wkSignAction(ctx *cli.Context) error {
	mode := domain.AuthMode(ctx.String("mode"))
	if !mode.IsValid() {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	message := ctx.String("message")
	if len(message) <= 0 {
		message = fmt.Sprintf("%d%s", time.Now().UnixMilli(), randstr.Hex(16))
	}

	svc, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if path := ctx.String("stats"); len(path) > 0 {
		defer func() {
			stats.PrintMemoryStatistics()
			if err := stats.DumpMetrics(svc.registry, path); err != nil {
				log.WithError(err).Warn("error while dumping metrics")
			}
		}()
	}

	relayClient, err := relay.NewClient(relay.ClientOpts{
		URL:            config.GetString(config.RelayURLKey),
		RequestTimeout: config.GetDuration(config.RelayTimeoutKey),
		RateLimit:      config.GetInt(config.RelayRateLimitKey),
	})
	if err != nil {
		return err
	}
	wkSignSvc, err := application.NewWkSignService(application.WkSignServiceOpts{
		Identity:      svc.hydration,
		Relay:         relayClient,
		IdentityChain: config.GetIdentityChain(),
		Policy:        config.GetMessagePolicy(),
		Timeout:       config.GetDuration(config.WkSignTimeoutKey),
		Metrics:       svc.metrics,
	})
	if err != nil {
		return err
	}

	req := domain.WkSignRequest{
		Message:  message,
		AuthMode: mode,
	}
	if origin := ctx.String("origin"); len(origin) > 0 {
		req.RequesterInfo = &domain.RequesterInfo{Origin: origin}
	}

	g, gctx := errgroup.WithContext(context.Background())
	listenCtx, stopListening := context.WithCancel(gctx)
	defer stopListening()

	if mode == domain.AuthModeWalletPlusKey {
		listener, err := newPushListener(gctx, svc.hydration, wkSignSvc)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return listener.Listen(listenCtx)
		})

		// The key device answer must not be pushed before the room is joined.
		select {
		case <-listener.Joined():
		case <-gctx.Done():
			return g.Wait()
		}
	}

	broker := application.NewRequestBroker()
	responses := make(chan application.Response, 1)
	if _, err := broker.Submit(application.ExternalRequest{
		Method: wkSignMethod,
		Params: req,
		Origin: ctx.String("origin"),
	}, func(res application.Response) {
		responses <- res
	}); err != nil {
		return err
	}

	var result interface{}
	g.Go(func() error {
		defer stopListening()

		handlePopup(gctx, broker, wkSignSvc, ctx.Bool("yes"))
		res := <-responses
		if res.Err != nil {
			return res.Err
		}
		result = res.Result
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	printRespJSON(result)
	return nil
}

func newPushListener(
	ctx context.Context,
	identity application.IdentityProvider,
	handler application.WkSignService,
) (*relay.PushListener, error) {
	authorizer, err := identity.IdentityAuthorizer(ctx)
	if err != nil {
		return nil, err
	}
	defer authorizer.Zero()

	wkIdentity := authorizer.Identity()
	auth, err := authorizer.Authorize(
		relayauth.ActionJoin, map[string]string{"wkIdentity": wkIdentity},
	)
	if err != nil {
		return nil, err
	}

	return relay.NewPushListener(relay.PushListenerOpts{
		URL:        config.GetRelayWsURL(),
		WkIdentity: wkIdentity,
		Auth:       auth,
		Handler:    handler,
	})
}

// handlePopup picks up the pending request, asks for confirmation and
// settles the request with the outcome of the signature.
func handlePopup(
	ctx context.Context,
	broker application.RequestBroker,
	wkSignSvc application.WkSignService,
	autoApprove bool,
) {
	pending, ok := broker.Pending()
	if !ok {
		return
	}
	req, ok := pending.Params.(domain.WkSignRequest)
	if !ok || pending.Method != wkSignMethod {
		_ = broker.Reject(
			pending.ID, application.RejectCodeInternal, "unsupported method",
		)
		return
	}

	if !autoApprove && !confirm(req) {
		_ = broker.Reject(
			pending.ID, application.RejectCodeUserRejected, "user rejected the request",
		)
		return
	}

	result, err := wkSignSvc.Sign(ctx, req)
	if err != nil {
		_ = broker.Reject(pending.ID, application.RejectCodeInternal, err.Error())
		return
	}
	_ = broker.Resolve(pending.ID, result)
}

func confirm(req domain.WkSignRequest) bool {
	origin := "unknown origin"
	if req.RequesterInfo != nil && len(req.RequesterInfo.Origin) > 0 {
		origin = req.RequesterInfo.Origin
	}
	fmt.Printf("\n%s requests a %s signature of:\n%s\n", origin, req.AuthMode, req.Message)
	fmt.Print("approve? [y/N] ")

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
