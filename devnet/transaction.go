// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/postman"
	"github.com/ava-labs/l2devnet/registry"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

const mintUnit = "wei"

var (
	constructorSelector = felt.Selector("constructor")
	mintSelector        = felt.Selector("mint")
	balanceOfSelector   = felt.Selector("balanceOf")
)

type DeployRequest struct {
	Class               *state.Class
	ConstructorCalldata []felt.Felt
	Salt                felt.Felt
}

type DeployResult struct {
	Address felt.Felt
	TxHash  felt.Felt
	Status  chain.Status
}

type InvokeRequest struct {
	ContractAddress felt.Felt
	Selector        felt.Felt
	Calldata        []felt.Felt
	// MaxFee caps the fee of an invoke. Zero disables the check.
	MaxFee    felt.Felt
	Signature []felt.Felt
}

type InvokeResult struct {
	Address felt.Felt
	TxHash  felt.Felt
	Status  chain.Status
	// Result is the return data of the entry point, empty when rejected.
	Result []felt.Felt
}

type MintResult struct {
	NewBalance felt.Felt `json:"new_balance"`
	Unit       string    `json:"unit"`
	TxHash     felt.Felt `json:"tx_hash"`
}

// Deploy declares the class of [req] and deploys a contract of it. Deploying
// at an address that is already taken is a no-op that still succeeds.
func (d *Devnet) Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error) {
	if req.Class == nil || req.Class.Program == "" {
		return nil, validationf("Missing contract definition.")
	}
	classHash, err := d.executor.ClassHash(req.Class)
	if err != nil {
		return nil, validationf("Invalid contract definition: %s", err)
	}
	address := chain.ContractAddress(req.Salt, classHash, req.ConstructorCalldata, felt.Zero)

	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	nonce, err := d.registry.Transactions.Count()
	if err != nil {
		return nil, err
	}
	tx := &chain.Transaction{
		Kind:            chain.KindDeploy,
		ContractAddress: address,
		Selector:        constructorSelector,
		Calldata:        req.ConstructorCalldata,
		ClassHash:       classHash,
		Salt:            req.Salt,
		Nonce:           nonce,
		Status:          chain.StatusReceived,
	}
	if d.config.LiteModeDeployHash {
		tx.Hash = felt.FromUint64(nonce)
	} else {
		tx.Hash = chain.TxHash(chain.KindDeploy, address, constructorSelector, req.ConstructorCalldata, felt.Zero, d.config.ChainID, nonce)
	}
	res := &DeployResult{Address: address, TxHash: tx.Hash, Status: chain.StatusAcceptedOnL2}

	if has, err := d.registry.Contracts.Has(address); err != nil {
		return nil, err
	} else if has {
		d.log.Debug("contract already deployed", "address", address.FixedHex())
		return res, nil
	}

	info, blockCtx, err := d.nextBlock()
	if err != nil {
		return nil, err
	}
	pre := d.engine.Snapshot()
	txn := pre.Begin()
	txn.DeclareClass(classHash, req.Class)
	if err := txn.DeployContract(address, classHash); err != nil {
		return nil, err
	}
	out, err := d.run(ctx, blockCtx, &vm.Request{
		Type:            vm.Constructor,
		ContractAddress: address,
		Selector:        constructorSelector,
		Calldata:        req.ConstructorCalldata,
	}, txn)
	switch {
	case vm.IsExecutionError(err):
		res.Status = chain.StatusRejected
		return res, d.reject(tx, err.Error())
	case err != nil:
		return nil, err
	}

	contract := &chain.ContractInstance{Address: address, ClassHash: classHash}
	if err := d.commitBlock(tx, info, blockCtx, pre, txn, out, contract); err != nil {
		return nil, err
	}
	return res, nil
}

// Invoke runs an external entry point in a new transaction.
func (d *Devnet) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	return d.invoke(ctx, chain.KindInvoke, vm.External, req)
}

// HandleMessageToL2 runs the L1 handler [msg] targets. The sender is passed
// as the first calldata element.
func (d *Devnet) HandleMessageToL2(ctx context.Context, msg *postman.MessageToL2) (felt.Felt, error) {
	if err := d.acquire(ctx); err != nil {
		return felt.Zero, err
	}
	defer d.release()

	calldata := make([]felt.Felt, 0, len(msg.Payload)+1)
	calldata = append(calldata, felt.FromBytes(msg.FromAddress.Bytes()))
	calldata = append(calldata, msg.Payload...)
	res, err := d.invoke(ctx, chain.KindL1Handler, vm.L1Handler, &InvokeRequest{
		ContractAddress: msg.ToAddress,
		Selector:        msg.Selector,
		Calldata:        calldata,
	})
	if err != nil {
		return felt.Zero, err
	}
	return res.TxHash, nil
}

// Mint credits [amount] of the fee token to [address].
func (d *Devnet) Mint(ctx context.Context, address felt.Felt, amount felt.Felt) (*MintResult, error) {
	if d.feeToken == nil {
		return nil, validationf("Fee token is disabled.")
	}
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	res, err := d.invoke(ctx, chain.KindInvoke, vm.External, &InvokeRequest{
		ContractAddress: d.feeTokenAddress,
		Selector:        mintSelector,
		Calldata:        []felt.Felt{address, amount, felt.Zero},
	})
	if err != nil {
		return nil, err
	}
	if res.Status != chain.StatusAcceptedOnL2 {
		return nil, fmt.Errorf("mint transaction %s was rejected", res.TxHash)
	}
	balance, err := d.Call(ctx, &InvokeRequest{
		ContractAddress: d.feeTokenAddress,
		Selector:        balanceOfSelector,
		Calldata:        []felt.Felt{address},
	})
	if err != nil {
		return nil, err
	}
	if len(balance) == 0 {
		return nil, errors.New("balanceOf returned no data")
	}
	return &MintResult{NewBalance: balance[0], Unit: mintUnit, TxHash: res.TxHash}, nil
}

// invoke must be called from within the execution lane.
func (d *Devnet) invoke(ctx context.Context, kind chain.Kind, entry vm.EntryType, req *InvokeRequest) (*InvokeResult, error) {
	known, err := d.registry.Contracts.Has(req.ContractAddress)
	if err != nil {
		return nil, err
	}
	// Messages from L1 are received whatever their target, so a missing
	// contract rejects the transaction instead of failing the request.
	if !known && kind != chain.KindL1Handler {
		return nil, chain.NewNotFound("contract", req.ContractAddress.FixedHex())
	}

	nonce, err := d.registry.Transactions.Count()
	if err != nil {
		return nil, err
	}
	tx := &chain.Transaction{
		Hash:            chain.TxHash(kind, req.ContractAddress, req.Selector, req.Calldata, req.MaxFee, d.config.ChainID, nonce),
		Kind:            kind,
		ContractAddress: req.ContractAddress,
		Selector:        req.Selector,
		Calldata:        req.Calldata,
		MaxFee:          req.MaxFee,
		Signature:       req.Signature,
		Nonce:           nonce,
		Status:          chain.StatusReceived,
	}
	res := &InvokeResult{
		Address: req.ContractAddress,
		TxHash:  tx.Hash,
		Status:  chain.StatusRejected,
		Result:  []felt.Felt{},
	}
	if !known {
		return res, d.reject(tx, fmt.Sprintf("Requested contract address %s is not deployed.", req.ContractAddress.FixedHex()))
	}

	info, blockCtx, err := d.nextBlock()
	if err != nil {
		return nil, err
	}
	vmReq := &vm.Request{
		Type:            entry,
		ContractAddress: req.ContractAddress,
		Selector:        req.Selector,
		Calldata:        req.Calldata,
	}
	pre := d.engine.Snapshot()

	if !req.MaxFee.IsZero() {
		fee, err := d.executor.EstimateFee(ctx, blockCtx, vmReq, pre)
		switch {
		case vm.IsExecutionError(err):
			return res, d.reject(tx, err.Error())
		case err != nil:
			return nil, err
		case req.MaxFee.IsUint64() && fee > req.MaxFee.Uint64():
			return res, d.reject(tx, fmt.Sprintf("Actual fee exceeded max fee.\n%d > %d", fee, req.MaxFee.Uint64()))
		}
	}

	txn := pre.Begin()
	out, err := d.run(ctx, blockCtx, vmReq, txn)
	switch {
	case vm.IsExecutionError(err):
		return res, d.reject(tx, err.Error())
	case err != nil:
		return nil, err
	}
	if err := d.commitBlock(tx, info, blockCtx, pre, txn, out, nil); err != nil {
		return nil, err
	}
	res.Status = chain.StatusAcceptedOnL2
	if out.Retdata != nil {
		res.Result = out.Retdata
	}
	return res, nil
}

// Call runs an entry point against the current state without recording
// anything.
func (d *Devnet) Call(ctx context.Context, req *InvokeRequest) ([]felt.Felt, error) {
	snap, blockCtx, err := d.view()
	if err != nil {
		return nil, err
	}
	if !snap.IsDeployed(req.ContractAddress) {
		return nil, chain.NewNotFound("contract", req.ContractAddress.FixedHex())
	}
	return d.executor.Call(ctx, blockCtx, &vm.Request{
		Type:            vm.External,
		ContractAddress: req.ContractAddress,
		Selector:        req.Selector,
		Calldata:        req.Calldata,
	}, snap)
}

// EstimateFee returns the fee an invoke of [req] would be charged now.
func (d *Devnet) EstimateFee(ctx context.Context, req *InvokeRequest) (uint64, error) {
	snap, blockCtx, err := d.view()
	if err != nil {
		return 0, err
	}
	if !snap.IsDeployed(req.ContractAddress) {
		return 0, chain.NewNotFound("contract", req.ContractAddress.FixedHex())
	}
	return d.executor.EstimateFee(ctx, blockCtx, &vm.Request{
		Type:            vm.External,
		ContractAddress: req.ContractAddress,
		Selector:        req.Selector,
		Calldata:        req.Calldata,
	}, snap)
}

// GasPrice is the gas price of the next block.
func (d *Devnet) GasPrice() uint64 {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.blockInfo.gasPrice
}

// view returns the current state together with the context of the block it
// would be extended by.
func (d *Devnet) view() (*state.Snapshot, vm.BlockContext, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	number, err := d.registry.Blocks.Count()
	if err != nil {
		return nil, vm.BlockContext{}, err
	}
	return d.engine.Snapshot(), d.blockInfo.Peek(number), nil
}

// nextBlock returns a copy of the generator advanced to the next block. It
// is only published if the block is committed.
func (d *Devnet) nextBlock() (*BlockInfo, vm.BlockContext, error) {
	number, err := d.registry.Blocks.Count()
	if err != nil {
		return nil, vm.BlockContext{}, err
	}
	info := d.blockInfo.clone()
	return info, info.Next(number), nil
}

// run executes [req] to completion. Cancelling [ctx] does not interrupt it.
func (d *Devnet) run(ctx context.Context, blockCtx vm.BlockContext, req *vm.Request, st state.Mutable) (*vm.Result, error) {
	start := time.Now()
	res, err := d.executor.Execute(context.WithoutCancel(ctx), blockCtx, req, st)
	d.metrics.execDuration.Observe(time.Since(start).Seconds())
	return res, err
}

// reject records [tx] as rejected with [reason]. No block is produced and the
// state is left untouched.
func (d *Devnet) reject(tx *chain.Transaction, reason string) error {
	tx.Reject(reason)

	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.registry.Transactions.Put(tx); err != nil {
		d.registry.Abort()
		assertConsistent(err)
		return err
	}
	if err := d.registry.Commit(); err != nil {
		d.registry.Abort()
		return err
	}
	d.metrics.transactions.WithLabelValues(tx.Kind.String(), tx.Status.String()).Inc()
	d.log.Info("rejected transaction",
		"hash", tx.Hash,
		"kind", tx.Kind,
		"reason", reason,
	)
	return nil
}

// commitBlock wraps a successful execution into the next block and publishes
// the block, its transaction, the deployed contract if any and the new state
// at once.
func (d *Devnet) commitBlock(
	tx *chain.Transaction,
	info *BlockInfo,
	blockCtx vm.BlockContext,
	pre *state.Snapshot,
	txn *state.Txn,
	out *vm.Result,
	contract *chain.ContractInstance,
) error {
	post, err := txn.Commit()
	if err != nil {
		return err
	}
	c, err := d.engine.Commit(pre, post)
	if err != nil {
		return err
	}

	parent := felt.Zero
	if latest, err := d.registry.Blocks.Latest(); err == nil {
		parent = latest.Hash
	} else if !errors.Is(err, chain.ErrNotFound) {
		return err
	}
	blk := &chain.Block{
		Number:      blockCtx.Number,
		ParentHash:  parent,
		Timestamp:   blockCtx.Timestamp,
		GasPrice:    blockCtx.GasPrice,
		OldRoot:     c.OldRoot,
		NewRoot:     c.NewRoot,
		TxHashes:    []felt.Felt{tx.Hash},
		StateUpdate: *c.Diff,
	}
	if d.config.LiteModeBlockHash {
		blk.Hash = felt.FromUint64(blk.Number)
	} else {
		blk.Hash = chain.ComputeBlockHash(blk)
	}

	tx.Receipt = chain.Receipt{
		Resources:    out.Resources,
		MessagesToL1: out.MessagesToL1,
		Events:       out.Events,
		ActualFee:    out.ActualFee,
		Retdata:      out.Retdata,
	}
	tx.Accept(blk)
	if contract != nil {
		contract.DeployTxHash = tx.Hash
	}

	if err := d.publish(blk, tx, contract, c, info); err != nil {
		return err
	}

	d.metrics.blocks.Inc()
	d.metrics.height.Set(float64(blk.Number + 1))
	d.metrics.transactions.WithLabelValues(tx.Kind.String(), tx.Status.String()).Inc()
	d.log.Info("accepted block",
		"number", blk.Number,
		"hash", blk.Hash,
		"tx", tx.Hash,
		"kind", tx.Kind,
	)

	if d.config.DumpOn == DumpOnTransaction {
		if err := d.dump(d.config.DumpPath); err != nil {
			d.log.Error("failed to dump after transaction", "path", d.config.DumpPath, "err", err)
		}
	}
	return nil
}

func (d *Devnet) publish(
	blk *chain.Block,
	tx *chain.Transaction,
	contract *chain.ContractInstance,
	c *state.Commitment,
	info *BlockInfo,
) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	err := d.registry.Blocks.Put(blk)
	if err == nil {
		err = d.registry.Transactions.Put(tx)
	}
	if err == nil && contract != nil {
		err = d.registry.Contracts.Put(contract)
	}
	if err == nil {
		err = d.registry.Commit()
	}
	if err != nil {
		d.registry.Abort()
		assertConsistent(err)
		return err
	}
	d.engine.Apply(c)
	d.blockInfo = info
	return nil
}

// assertConsistent panics on errors only a broken execution lane can cause.
func assertConsistent(err error) {
	if errors.Is(err, registry.ErrDuplicate) || errors.Is(err, registry.ErrNonContiguous) {
		panic(err)
	}
}
