// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nativevm is a contract executor with a fixed set of built-in
// programs written in Go. It has real storage effects, so the devnet can be
// driven end to end without a Cairo VM.
package nativevm

import (
	"context"
	"errors"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

const (
	codeUninitialized   = "UNINITIALIZED_CONTRACT"
	codeEntryPoint      = "ENTRY_POINT_NOT_FOUND_IN_CONTRACT"
	codeInvalidCalldata = "INVALID_CALLDATA"
	codeUnknownProgram  = "INVALID_PROGRAM"
	codeAssertion       = "TRANSACTION_FAILED"

	baseSteps     = 100
	stepsPerInput = 10
	stepsPerWrite = 50
	stepsPerGas   = 20
)

var (
	ErrUnknownProgram = errors.New("unknown program")
	errNilClass       = errors.New("nil class")

	_ vm.Executor = (*Executor)(nil)
)

type Executor struct{}

func New() *Executor { return &Executor{} }

func (*Executor) ClassHash(class *state.Class) (felt.Felt, error) {
	if class == nil {
		return felt.Zero, errNilClass
	}
	return felt.HashOnElements(
		felt.FromShortString(class.Program),
		felt.Keccak250(class.ABI),
	), nil
}

func (e *Executor) Execute(_ context.Context, block vm.BlockContext, req *vm.Request, st state.Mutable) (*vm.Result, error) {
	return e.run(block, req, st)
}

func (e *Executor) Call(_ context.Context, block vm.BlockContext, req *vm.Request, st state.Reader) ([]felt.Felt, error) {
	res, err := e.run(block, req, newOverlay(st))
	if err != nil {
		return nil, err
	}
	return res.Retdata, nil
}

func (e *Executor) EstimateFee(_ context.Context, block vm.BlockContext, req *vm.Request, st state.Reader) (uint64, error) {
	res, err := e.run(block, req, newOverlay(st))
	if err != nil {
		return 0, err
	}
	return res.ActualFee, nil
}

// Fee converts steps into the amount charged at [gasPrice].
func Fee(nSteps, gasPrice uint64) uint64 {
	return (nSteps + stepsPerGas - 1) / stepsPerGas * gasPrice
}

// StateRoot chains [prev] with every entry of [diff]. An empty diff keeps the
// root unchanged.
func (*Executor) StateRoot(prev felt.Felt, diff *state.Diff) (felt.Felt, error) {
	if diff.IsEmpty() {
		return prev, nil
	}
	elems := []felt.Felt{prev}
	for _, sd := range diff.StorageDiffs {
		kv := make([]felt.Felt, 0, 2*len(sd.Entries))
		for _, e := range sd.Entries {
			kv = append(kv, e.Key, e.Value)
		}
		elems = append(elems, sd.Address, felt.HashOnElements(kv...))
	}
	for _, c := range diff.DeployedContracts {
		elems = append(elems, c.Address, c.ClassHash)
	}
	return felt.HashOnElements(elems...), nil
}

func (e *Executor) run(block vm.BlockContext, req *vm.Request, st state.Mutable) (*vm.Result, error) {
	classHash, ok := st.ClassHashAt(req.ContractAddress)
	if !ok {
		return nil, vm.Errorf(codeUninitialized, "Requested contract address %s is not deployed.", req.ContractAddress.FixedHex())
	}
	class, ok := st.Class(classHash)
	if !ok {
		return nil, vm.Errorf(codeUninitialized, "Class %s of contract %s is not declared.", classHash, req.ContractAddress.FixedHex())
	}
	p, ok := programs[class.Program]
	if !ok {
		return nil, vm.Errorf(codeUnknownProgram, "Class %s runs unknown program %q.", classHash, class.Program)
	}

	ep, ok := p.lookup(req.Type, req.Selector)
	if !ok {
		// contracts without a constructor accept deploys with no calldata
		if req.Type == vm.Constructor && len(req.Calldata) == 0 {
			return e.result(block, req, &execCtx{}, nil), nil
		}
		return nil, vm.Errorf(codeEntryPoint, "Entry point %s not found in contract with class hash %s.", req.Selector, classHash)
	}
	if err := ep.checkArity(req.Calldata); err != nil {
		return nil, err
	}

	c := &execCtx{
		st:     st,
		self:   req.ContractAddress,
		caller: req.Caller,
		block:  block,
	}
	retdata, err := ep.run(c, req.Calldata)
	if err != nil {
		return nil, err
	}
	return e.result(block, req, c, retdata), nil
}

func (*Executor) result(block vm.BlockContext, req *vm.Request, c *execCtx, retdata []felt.Felt) *vm.Result {
	res := &vm.Result{
		Retdata:      retdata,
		MessagesToL1: c.messages,
		Events:       c.events,
	}
	if res.Retdata == nil {
		res.Retdata = []felt.Felt{}
	}
	res.Resources.NSteps = baseSteps + stepsPerInput*uint64(len(req.Calldata)) + stepsPerWrite*uint64(c.writes)
	res.ActualFee = Fee(res.Resources.NSteps, block.GasPrice)
	return res
}
