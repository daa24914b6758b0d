package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/ssp-wallet/ssp-core/internal/config"
	"github.com/urfave/cli/v2"
)

var (
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "the directory where the wallet state is stored",
	}
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Usage:   "the password used to encrypt the wallet secrets",
		EnvVars: []string{"SSP_PASSWORD"},
	}
	chainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "the chain identifier, ie. btc, ltc, doge, sepolia",
		Value: "btc",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "ssp"
	app.Usage = "Command line interface of the ssp 2-of-2 multisig wallet"
	app.Flags = []cli.Flag{datadirFlag, passwordFlag}
	app.Before = initApp
	app.Commands = append(
		app.Commands,
		&genseed,
		&initwallet,
		&activate,
		&syncwallet,
		&xpub,
		&address,
		&switchwallet,
		&signmessage,
		&signtx,
		&wif,
		&wksign,
		&cosign,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func initApp(ctx *cli.Context) error {
	if datadir := ctx.String(datadirFlag.Name); len(datadir) > 0 {
		if err := os.Setenv("SSP_"+config.DatadirKey, datadir); err != nil {
			return err
		}
	}
	if err := config.InitConfig(); err != nil {
		return err
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
	return nil
}

func printRespJSON(resp interface{}) {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}

	fmt.Println(string(jsonBytes))
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[ssp] %v\n", err)
	}
	os.Exit(1)
}
