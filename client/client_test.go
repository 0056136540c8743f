// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/api"
	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/nativevm"
)

func newTestClient(t *testing.T) Client {
	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_650_000_000, 0))
	registry := prometheus.NewRegistry()

	d, err := devnet.New(devnet.DefaultConfig(),
		devnet.WithClock(clock),
		devnet.WithRegisterer(registry),
	)
	require.NoError(t, err)
	s, err := api.NewServer(d, registry)
	require.NoError(t, err)

	server := httptest.NewServer(s)
	t.Cleanup(server.Close)
	return New(server.URL + "/")
}

func TestClient(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	cli := newTestClient(t)

	deployed, err := cli.Deploy(ctx, nativevm.MustClass(nativevm.ProgramBalance), felt.FromUint64(7), nil)
	require.NoError(err)
	address := deployed.Address

	invoked, err := cli.Invoke(ctx, address, felt.Selector("increase_balance"), []felt.Felt{felt.FromUint64(10), felt.FromUint64(20)}, felt.Zero)
	require.NoError(err)

	number, err := cli.BlockNumber(ctx)
	require.NoError(err)
	require.Equal(uint64(1), number)

	blk, err := cli.GetBlock(ctx, nil)
	require.NoError(err)
	require.Equal(uint64(1), blk.BlockNumber)
	first := uint64(0)
	genesis, err := cli.GetBlock(ctx, &first)
	require.NoError(err)
	require.Equal(genesis.BlockHash, blk.ParentBlockHash)

	tx, err := cli.GetTransaction(ctx, invoked.TransactionHash)
	require.NoError(err)
	require.Equal(chain.StatusAcceptedOnL2, tx.Status)

	receipt, err := cli.GetTransactionReceipt(ctx, invoked.TransactionHash)
	require.NoError(err)
	require.Equal(blk.BlockHash, *receipt.BlockHash)

	value, err := cli.GetStorageAt(ctx, address, nativevm.BalanceKey)
	require.NoError(err)
	require.Equal("0x1e", value.Hex())

	result, err := cli.Call(ctx, address, felt.Selector("get_balance"), nil)
	require.NoError(err)
	require.Equal([]felt.Felt{felt.FromUint64(30)}, result)

	code, err := cli.GetCode(ctx, address)
	require.NoError(err)
	require.Len(code.Bytecode, 1)

	update, err := cli.GetStateUpdate(ctx, &number)
	require.NoError(err)
	require.Equal(blk.StateRoot, update.NewRoot)

	trace, err := cli.GetTransactionTrace(ctx, invoked.TransactionHash)
	require.NoError(err)
	require.Equal(address, trace.FunctionInvocation.ContractAddress)
	require.Equal([]felt.Felt{felt.FromUint64(10), felt.FromUint64(20)}, trace.FunctionInvocation.Calldata)
	_, err = cli.GetTransactionTrace(ctx, felt.FromUint64(0x123))
	require.Error(err)

	chainID, err := cli.ChainID(ctx)
	require.NoError(err)
	require.Equal(devnet.DefaultChainID.Hex(), chainID)
}

func TestClientControl(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	cli := newTestClient(t)

	require.NoError(cli.SetTime(ctx, 2000))
	require.NoError(cli.IncreaseTime(ctx, 50))
	require.Error(cli.IncreaseTime(ctx, -1))

	minted, err := cli.Mint(ctx, felt.FromUint64(0x42), felt.FromUint64(500))
	require.NoError(err)
	require.Equal(felt.FromUint64(500), minted.NewBalance)

	blk, err := cli.GetBlock(ctx, nil)
	require.NoError(err)
	require.Equal(int64(2000), blk.Timestamp)

	path := filepath.Join(t.TempDir(), "dump.pkl")
	require.NoError(cli.Dump(ctx, path))
	require.NoError(cli.Restart(ctx))
	_, err = cli.BlockNumber(ctx)
	require.Error(err)

	require.NoError(cli.Load(ctx, path))
	number, err := cli.BlockNumber(ctx)
	require.NoError(err)
	require.Equal(uint64(0), number)

	flushed, err := cli.Flush(ctx)
	require.NoError(err)
	require.Empty(flushed.ConsumedMessages.FromL1)

	_, err = cli.LoadMessagingContract(ctx, "http://127.0.0.1:8545", "not an address")
	require.Error(err)
}
