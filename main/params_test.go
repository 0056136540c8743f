// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/felt"
)

func parse(t *testing.T, args ...string) (*params, error) {
	v, err := getViper(buildFlagSet(), args)
	require.NoError(t, err)
	return parseParams(v)
}

func TestDefaultParams(t *testing.T) {
	require := require.New(t)

	p, err := parse(t)
	require.NoError(err)
	require.Equal("127.0.0.1", p.host)
	require.Equal(uint16(5050), p.port)
	require.Equal("info", p.logLevel)
	require.Equal(devnet.DefaultConfig(), p.config)
}

func TestParams(t *testing.T) {
	require := require.New(t)

	p, err := parse(t,
		"--port", "6000",
		"--lite-mode",
		"--dump-on", "exit",
		"--dump-path", "/tmp/devnet.pkl",
		"--start-time", "0",
		"--gas-price", "7",
		"--chain-id", "SN_MAIN",
	)
	require.NoError(err)
	require.Equal(uint16(6000), p.port)
	require.True(p.config.LiteModeBlockHash)
	require.True(p.config.LiteModeDeployHash)
	require.Equal(devnet.DumpOnExit, p.config.DumpOn)
	require.Equal("/tmp/devnet.pkl", p.config.DumpPath)
	require.NotNil(p.config.StartTime)
	require.Zero(*p.config.StartTime)
	require.Equal(uint64(7), p.config.GasPrice)
	require.Equal(felt.FromShortString("SN_MAIN"), p.config.ChainID)
}

func TestInvalidParams(t *testing.T) {
	require := require.New(t)

	_, err := parse(t, "--dump-on", "never")
	require.EqualError(err, "Invalid --dump-on option: never. Valid options: exit, transaction")

	_, err = parse(t, "--dump-on", "transaction")
	require.EqualError(err, "--dump-path required if --dump-on present")
}

func TestConfigFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "devnet.yaml")
	require.NoError(os.WriteFile(path, []byte("port: 7000\nlite-mode-block-hash: true\n"), 0o600))

	p, err := parse(t, "--config-file", path, "--port", "7001")
	require.NoError(err)
	require.Equal(uint16(7001), p.port)
	require.True(p.config.LiteModeBlockHash)
	require.False(p.config.LiteModeDeployHash)
}

func TestEnvironment(t *testing.T) {
	require := require.New(t)

	t.Setenv("DEVNET_GAS_PRICE", "11")
	p, err := parse(t)
	require.NoError(err)
	require.Equal(uint64(11), p.config.GasPrice)
}
