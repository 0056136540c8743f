// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/felt"
)

const (
	envPrefix = "DEVNET"

	versionKey            = "version"
	configFileKey         = "config-file"
	hostKey               = "host"
	portKey               = "port"
	liteModeKey           = "lite-mode"
	liteModeBlockHashKey  = "lite-mode-block-hash"
	liteModeDeployHashKey = "lite-mode-deploy-hash"
	dumpPathKey           = "dump-path"
	dumpOnKey             = "dump-on"
	loadPathKey           = "load-path"
	forkNetworkKey        = "fork-network"
	forkTimeoutKey        = "fork-timeout"
	startTimeKey          = "start-time"
	gasPriceKey           = "gas-price"
	chainIDKey            = "chain-id"
	logLevelKey           = "log-level"
)

func buildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)

	fs.Bool(versionKey, false, "If true, prints the version and quits")
	fs.String(configFileKey, "", "Path to a config file, flags take precedence over it")
	fs.String(hostKey, "127.0.0.1", "Address to listen on")
	fs.Uint16(portKey, 5050, "Port to listen on")
	fs.Bool(liteModeKey, false, "Shorthand for both lite mode flags")
	fs.Bool(liteModeBlockHashKey, false, "Use the block number as the block hash")
	fs.Bool(liteModeDeployHashKey, false, "Use the transaction count as the deploy transaction hash")
	fs.String(dumpPathKey, "", "Where to dump the devnet")
	fs.String(dumpOnKey, "", "When to dump the devnet: exit or transaction")
	fs.String(loadPathKey, "", "Load the devnet from a dump at start")
	fs.String(forkNetworkKey, "", "Feeder gateway URL of a network to fork")
	fs.Duration(forkTimeoutKey, 30*time.Second, "Timeout of requests to the forked network")
	fs.Int64(startTimeKey, 0, "Timestamp of the first block, the wall clock if unset")
	fs.Uint64(gasPriceKey, devnet.DefaultGasPrice, "Gas price of every block")
	fs.String(chainIDKey, "SN_GOERLI", "Chain id mixed into transaction hashes")
	fs.String(logLevelKey, "info", "Log level: debug, info, warn, error or crit")

	return fs
}

// getViper returns the viper environment for the devnet binary. Flags win
// over DEVNET_ prefixed environment variables, which win over the config
// file.
func getViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if path := v.GetString(configFileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("couldn't read config file %s: %w", path, err)
		}
	}
	return v, nil
}

type params struct {
	host        string
	port        uint16
	loadPath    string
	forkNetwork string
	forkTimeout time.Duration
	logLevel    string
	config      devnet.Config
}

func parseParams(v *viper.Viper) (*params, error) {
	dumpOn, err := devnet.ParseDumpOn(v.GetString(dumpOnKey))
	if err != nil {
		return nil, err
	}

	liteMode := v.GetBool(liteModeKey)
	config := devnet.DefaultConfig()
	config.LiteModeBlockHash = liteMode || v.GetBool(liteModeBlockHashKey)
	config.LiteModeDeployHash = liteMode || v.GetBool(liteModeDeployHashKey)
	config.GasPrice = v.GetUint64(gasPriceKey)
	config.ChainID = felt.FromShortString(v.GetString(chainIDKey))
	config.DumpPath = v.GetString(dumpPathKey)
	config.DumpOn = dumpOn
	if v.IsSet(startTimeKey) {
		startTime := v.GetInt64(startTimeKey)
		config.StartTime = &startTime
	}
	if err := config.Verify(); err != nil {
		return nil, err
	}

	return &params{
		host:        v.GetString(hostKey),
		port:        uint16(v.GetUint(portKey)),
		loadPath:    v.GetString(loadPathKey),
		forkNetwork: v.GetString(forkNetworkKey),
		forkTimeout: v.GetDuration(forkTimeoutKey),
		logLevel:    v.GetString(logLevelKey),
		config:      config,
	}, nil
}
