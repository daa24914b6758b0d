package main

import (
	"errors"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/config"
	"github.com/ssp-wallet/ssp-core/internal/core/application"
	"github.com/ssp-wallet/ssp-core/internal/infrastructure/cipher"
	dbbadger "github.com/ssp-wallet/ssp-core/internal/infrastructure/storage/db/badger"
	dbbolt "github.com/ssp-wallet/ssp-core/internal/infrastructure/storage/db/bolt"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/urfave/cli/v2"
)

var errMissingPassword = errors.New(
	"password is required, use --password or SSP_PASSWORD",
)

type services struct {
	registry  *prometheus.Registry
	metrics   *application.Metrics
	hydration application.HydrationService
}

func getServices(ctx *cli.Context) (*services, func(), error) {
	password := ctx.String(passwordFlag.Name)
	if len(password) <= 0 {
		return nil, nil, errMissingPassword
	}
	passwordCipher, err := cipher.NewCipher(password)
	if err != nil {
		return nil, nil, err
	}

	datadir := config.GetDatadir()
	store, err := dbbolt.NewSecureStore(
		filepath.Join(datadir, config.SecureLocation),
	)
	if err != nil {
		return nil, nil, err
	}
	cache, err := dbbadger.NewCache(
		filepath.Join(datadir, config.DbLocation), log.StandardLogger(),
	)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := cache.Close(); err != nil {
			log.WithError(err).Warn("error while closing cache")
		}
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("error while closing secure store")
		}
	}

	registry := prometheus.NewRegistry()
	metrics, err := application.NewMetrics(registry)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	hydration := application.NewHydrationService(
		store, cache, passwordCipher, config.GetIdentityChain(), metrics,
	)

	return &services{registry, metrics, hydration}, cleanup, nil
}

func getChain(ctx *cli.Context) (chain.Chain, error) {
	return chain.Parse(ctx.String(chainFlag.Name))
}
