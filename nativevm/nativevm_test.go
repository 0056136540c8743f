// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativevm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

var block = vm.BlockContext{Number: 3, Timestamp: 1700000000, GasPrice: 100}

// deploy declares and deploys [program] at [address] in a fresh transaction.
func deploy(t *testing.T, e *Executor, program string, address felt.Felt, calldata ...felt.Felt) *state.Txn {
	require := require.New(t)

	class := MustClass(program)
	hash, err := e.ClassHash(class)
	require.NoError(err)
	txn := state.NewSnapshot().Begin()
	txn.DeclareClass(hash, class)
	require.NoError(txn.DeployContract(address, hash))
	_, err = e.Execute(context.Background(), block, &vm.Request{
		Type:            vm.Constructor,
		ContractAddress: address,
		Selector:        felt.Selector("constructor"),
		Calldata:        calldata,
	}, txn)
	require.NoError(err)
	return txn
}

func invoke(address felt.Felt, name string, calldata ...felt.Felt) *vm.Request {
	return &vm.Request{
		Type:            vm.External,
		ContractAddress: address,
		Selector:        felt.Selector(name),
		Calldata:        calldata,
	}
}

func TestBalanceProgram(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	e := New()
	addr := felt.FromUint64(0x123)
	txn := deploy(t, e, ProgramBalance, addr, felt.Zero)
	require.Equal(felt.Zero, txn.Storage(addr, BalanceKey))

	res, err := e.Execute(ctx, block, invoke(addr, "increase_balance", felt.FromUint64(10), felt.FromUint64(20)), txn)
	require.NoError(err)
	require.Empty(res.Retdata)
	require.Equal(uint64(baseSteps+2*stepsPerInput+stepsPerWrite), res.Resources.NSteps)
	require.Equal(felt.FromUint64(30), txn.Storage(addr, BalanceKey))

	out, err := e.Call(ctx, block, invoke(addr, "get_balance"), txn)
	require.NoError(err)
	require.Equal([]felt.Felt{felt.FromUint64(30)}, out)

	// calls never write through
	_, err = e.Call(ctx, block, invoke(addr, "increase_balance", felt.One, felt.One), txn)
	require.NoError(err)
	require.Equal(felt.FromUint64(30), txn.Storage(addr, BalanceKey))
}

func TestExecutionErrors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	e := New()
	addr := felt.FromUint64(0x123)
	txn := deploy(t, e, ProgramBalance, addr)

	_, err := e.Execute(ctx, block, invoke(addr, "increase_balance", felt.One), txn)
	require.True(vm.IsExecutionError(err))

	_, err = e.Execute(ctx, block, invoke(addr, "no_such_function"), txn)
	require.True(vm.IsExecutionError(err))
	require.Contains(err.Error(), codeEntryPoint)

	_, err = e.Execute(ctx, block, invoke(felt.FromUint64(0x999), "get_balance"), txn)
	require.True(vm.IsExecutionError(err))
	require.Contains(err.Error(), codeUninitialized)
}

func TestL1L2Program(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	e := New()
	addr := felt.FromUint64(0x777)
	user, l1 := felt.FromUint64(1), felt.FromUint64(0xe7f1)
	txn := deploy(t, e, ProgramL1L2, addr)

	_, err := e.Execute(ctx, block, invoke(addr, "increase_balance", user, felt.FromUint64(3333)), txn)
	require.NoError(err)

	_, err = e.Execute(ctx, block, invoke(addr, "withdraw", user, felt.FromUint64(5000), l1), txn)
	require.True(vm.IsExecutionError(err))

	res, err := e.Execute(ctx, block, invoke(addr, "withdraw", user, felt.FromUint64(1000), l1), txn)
	require.NoError(err)
	require.Equal([]state.MessageToL1{{
		FromAddress: addr,
		ToAddress:   l1,
		Payload:     []felt.Felt{felt.Zero, user, felt.FromUint64(1000)},
	}}, res.MessagesToL1)
	require.Equal(felt.FromUint64(2333), txn.Storage(addr, UserBalanceKey(user)))

	_, err = e.Execute(ctx, block, &vm.Request{
		Type:            vm.L1Handler,
		ContractAddress: addr,
		Selector:        felt.Selector("deposit"),
		Calldata:        []felt.Felt{l1, user, felt.FromUint64(600)},
	}, txn)
	require.NoError(err)
	out, err := e.Call(ctx, block, invoke(addr, "get_balance", user), txn)
	require.NoError(err)
	require.Equal([]felt.Felt{felt.FromUint64(2933)}, out)

	// l1 handlers are not reachable as external functions
	_, err = e.Execute(ctx, block, invoke(addr, "deposit", l1, user, felt.One), txn)
	require.True(vm.IsExecutionError(err))
}

func TestTimestampAndToken(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	e := New()
	clock := felt.FromUint64(0x71)
	out, err := e.Call(ctx, block, invoke(clock, "get_timestamp"), deploy(t, e, ProgramTimestamp, clock))
	require.NoError(err)
	require.Equal([]felt.Felt{felt.FromUint64(uint64(block.Timestamp))}, out)

	token := felt.FromUint64(0xf00)
	txn := deploy(t, e, ProgramERC20, token)
	res, err := e.Execute(ctx, block, invoke(token, "mint", felt.One, felt.FromUint64(50), felt.Zero), txn)
	require.NoError(err)
	require.Len(res.Events, 1)
	require.Equal(token, res.Events[0].FromAddress)
	out, err = e.Call(ctx, block, invoke(token, "balanceOf", felt.One), txn)
	require.NoError(err)
	require.Equal([]felt.Felt{felt.FromUint64(50), felt.Zero}, out)
}

func TestEstimateFee(t *testing.T) {
	require := require.New(t)

	e := New()
	addr := felt.FromUint64(0x123)
	txn := deploy(t, e, ProgramBalance, addr)
	fee, err := e.EstimateFee(context.Background(), block, invoke(addr, "increase_balance", felt.One, felt.One), txn)
	require.NoError(err)
	require.Equal(Fee(baseSteps+2*stepsPerInput+stepsPerWrite, block.GasPrice), fee)
	require.Equal(felt.Zero, txn.Storage(addr, BalanceKey))
	require.Equal(uint64(100), Fee(1, 100))
	require.Equal(uint64(100), Fee(20, 100))
	require.Equal(uint64(200), Fee(21, 100))
}

func TestClassHashAndABI(t *testing.T) {
	require := require.New(t)

	e := New()
	a, err := e.ClassHash(MustClass(ProgramBalance))
	require.NoError(err)
	b, err := e.ClassHash(MustClass(ProgramL1L2))
	require.NoError(err)
	require.NotEqual(a, b)

	_, err = NewClass("cobol")
	require.ErrorIs(err, ErrUnknownProgram)

	var abi []map[string]interface{}
	require.NoError(json.Unmarshal(MustClass(ProgramBalance).ABI, &abi))
	require.Equal("constructor", abi[0]["type"])
	require.Equal("increase_balance", abi[1]["name"])
	require.Equal([]string{ProgramBalance, ProgramERC20, ProgramL1L2, ProgramTimestamp}, Programs())
}

func TestStateRoot(t *testing.T) {
	require := require.New(t)

	e := New()
	prev := felt.FromUint64(5)
	empty := &state.Diff{}
	root, err := e.StateRoot(prev, empty)
	require.NoError(err)
	require.Equal(prev, root)

	d := &state.Diff{DeployedContracts: []state.DeployedContract{{Address: felt.One, ClassHash: felt.One}}}
	r1, err := e.StateRoot(prev, d)
	require.NoError(err)
	require.NotEqual(prev, r1)
	r2, err := e.StateRoot(felt.FromUint64(6), d)
	require.NoError(err)
	require.NotEqual(r1, r2)
}
