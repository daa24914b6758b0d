package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ssp-wallet/ssp-core/internal/core/domain"
	"github.com/ssp-wallet/ssp-core/pkg/chain"

	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the encrypted keys and
	// the local cache
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// RelayURLKey is the base url of the relay HTTP API
	RelayURLKey = "RELAY_URL"
	// RelayWsURLKey is the url of the relay push channel. Defaults to the
	// websocket variant of RelayURLKey
	RelayWsURLKey = "RELAY_WS_URL"
	// RelayTimeoutKey is the timeout of a single relay HTTP request
	RelayTimeoutKey = "RELAY_TIMEOUT"
	// RelayRateLimitKey is the max number of relay requests per second, 0
	// disables the limit
	RelayRateLimitKey = "RELAY_RATE_LIMIT"
	// WkSignValidityWindowKey is how old a wkSign message can be before being
	// rejected as expired
	WkSignValidityWindowKey = "WKSIGN_VALIDITY_WINDOW"
	// WkSignFutureDriftKey is how far in the future a wkSign message
	// timestamp can be
	WkSignFutureDriftKey = "WKSIGN_FUTURE_DRIFT"
	// WkSignEpochFloorKey is the unix timestamp (seconds) before which any
	// wkSign message is malformed
	WkSignEpochFloorKey = "WKSIGN_EPOCH_FLOOR"
	// WkSignTimeoutKey bounds the wait for the key device signature
	WkSignTimeoutKey = "WKSIGN_TIMEOUT"
	// IdentityChainKey is the chain whose multisig identity address
	// authenticates the wallet on the relay
	IdentityChainKey = "IDENTITY_CHAIN"

	DbLocation     = "db"
	SecureLocation = "secure"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("ssp", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("SSP")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(RelayURLKey, "https://relay.sspwallet.io")
	vip.SetDefault(RelayTimeoutKey, 15*time.Second)
	vip.SetDefault(RelayRateLimitKey, 10)
	vip.SetDefault(WkSignValidityWindowKey, domain.DefaultMessagePolicy.ValidityWindow)
	vip.SetDefault(WkSignFutureDriftKey, domain.DefaultMessagePolicy.FutureDrift)
	vip.SetDefault(WkSignEpochFloorKey, domain.DefaultMessagePolicy.EpochFloor.Unix())
	vip.SetDefault(WkSignTimeoutKey, 5*time.Minute)
	vip.SetDefault(IdentityChainKey, string(chain.IdentityChain))

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

// Set overrides the value of key, used by command line flags.
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetRelayWsURL() string {
	if url := GetString(RelayWsURLKey); len(url) > 0 {
		return url
	}
	url := GetString(RelayURLKey)
	switch {
	case len(url) > 8 && url[:8] == "https://":
		return "wss://" + url[8:]
	case len(url) > 7 && url[:7] == "http://":
		return "ws://" + url[7:]
	default:
		return url
	}
}

func GetMessagePolicy() domain.MessagePolicy {
	return domain.MessagePolicy{
		ValidityWindow: GetDuration(WkSignValidityWindowKey),
		FutureDrift:    GetDuration(WkSignFutureDriftKey),
		EpochFloor:     time.Unix(vip.GetInt64(WkSignEpochFloorKey), 0).UTC(),
	}
}

func GetIdentityChain() chain.Chain {
	return chain.Chain(GetString(IdentityChainKey))
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if len(GetString(RelayURLKey)) <= 0 {
		return fmt.Errorf("missing relay url")
	}
	if GetDuration(RelayTimeoutKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", RelayTimeoutKey)
	}
	if GetInt(RelayRateLimitKey) < 0 {
		return fmt.Errorf("%s must not be negative", RelayRateLimitKey)
	}

	if GetDuration(WkSignValidityWindowKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", WkSignValidityWindowKey)
	}
	if GetDuration(WkSignFutureDriftKey) < 0 {
		return fmt.Errorf("%s must not be negative", WkSignFutureDriftKey)
	}
	if GetDuration(WkSignTimeoutKey) < 0 {
		return fmt.Errorf("%s must not be negative", WkSignTimeoutKey)
	}

	spec, err := chain.Get(GetIdentityChain())
	if err != nil {
		return err
	}
	if !spec.IsUTXO() {
		return fmt.Errorf("identity chain %s must be a utxo chain", spec.Chain)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, SecureLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0700)
	}
	return nil
}
