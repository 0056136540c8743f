// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package devnet runs a local L2 chain: it executes transactions through a
// contract executor, commits one block per accepted transaction, persists
// itself to dump files and relays messages to L1 through a postman.
package devnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/nativevm"
	"github.com/ava-labs/l2devnet/origin"
	"github.com/ava-labs/l2devnet/postman"
	"github.com/ava-labs/l2devnet/registry"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

var _ postman.L2 = (*Devnet)(nil)

// Devnet is a single local chain.
//
// Every operation that changes the chain runs in the execution lane, one at a
// time. Committing a block additionally takes the publication lock
// exclusively, so readers observe a block, its transaction and the state it
// produced all at once.
type Devnet struct {
	lane *semaphore.Weighted
	lock sync.RWMutex

	// guarded by the lane
	config Config

	// guarded by the publication lock, blockInfo is replaced rather than
	// mutated
	blockInfo *BlockInfo
	engine    *state.Engine
	registry  *registry.State

	feeToken        *state.Class
	feeTokenAddress felt.Felt

	clock    *mockable.Clock
	executor vm.Executor
	origin   origin.Origin
	postman  *postman.Postman
	metrics  *metrics
	log      log.Logger
}

// New creates a devnet at genesis.
func New(config Config, opts ...Option) (*Devnet, error) {
	if err := config.Verify(); err != nil {
		return nil, err
	}
	o := &options{
		clock:      &mockable.Clock{},
		origin:     origin.Null{},
		executor:   nativevm.New(),
		feeToken:   nativevm.MustClass(nativevm.ProgramERC20),
		registerer: prometheus.NewRegistry(),
		log:        log.New("module", "devnet"),
	}
	for _, opt := range opts {
		opt(o)
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	reg, err := registry.New(memdb.New(), o.origin, o.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to create registries: %w", err)
	}

	d := &Devnet{
		lane:      semaphore.NewWeighted(1),
		config:    config,
		blockInfo: newBlockInfo(o.clock, config.GasPrice, config.StartTime),
		engine:    state.NewEngine(o.executor, o.origin),
		registry:  reg,
		feeToken:  o.feeToken,
		clock:     o.clock,
		executor:  o.executor,
		origin:    o.origin,
		metrics:   m,
		log:       o.log,
	}
	d.postman = postman.New(d, o.dialer)
	if err := d.genesis(); err != nil {
		return nil, err
	}
	return d, nil
}

// genesis declares and deploys the fee token without producing a block.
func (d *Devnet) genesis() error {
	if d.feeToken == nil {
		return nil
	}
	classHash, err := d.executor.ClassHash(d.feeToken)
	if err != nil {
		return fmt.Errorf("invalid fee token class: %w", err)
	}
	d.feeTokenAddress = chain.ContractAddress(felt.FromUint64(feeTokenSalt), classHash, nil, felt.Zero)

	pre := d.engine.Snapshot()
	txn := pre.Begin()
	txn.DeclareClass(classHash, d.feeToken)
	if err := txn.DeployContract(d.feeTokenAddress, classHash); err != nil {
		return err
	}
	post, err := txn.Commit()
	if err != nil {
		return err
	}
	c, err := d.engine.Commit(pre, post)
	if err != nil {
		return err
	}

	if err := d.registry.Contracts.Put(&chain.ContractInstance{
		Address:   d.feeTokenAddress,
		ClassHash: classHash,
	}); err != nil {
		d.registry.Abort()
		return err
	}
	if err := d.registry.Commit(); err != nil {
		d.registry.Abort()
		return err
	}
	d.engine.Apply(c)
	d.log.Debug("deployed fee token", "address", d.feeTokenAddress.FixedHex())
	return nil
}

// acquire enters the execution lane.
func (d *Devnet) acquire(ctx context.Context) error {
	return d.lane.Acquire(ctx, 1)
}

func (d *Devnet) release() { d.lane.Release(1) }

// Postman returns the L1 bridge of the devnet.
func (d *Devnet) Postman() *postman.Postman { return d.postman }

// FeeTokenAddress is the address of the fee token, zero when disabled.
func (d *Devnet) FeeTokenAddress() felt.Felt {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.feeTokenAddress
}

// ChainID is the chain id transaction hashes are bound to.
func (d *Devnet) ChainID() felt.Felt {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.config.ChainID
}

// BlockCount is the number of blocks produced so far.
func (d *Devnet) BlockCount() (uint64, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.registry.Blocks.Count()
}

func (d *Devnet) LatestBlock() (*chain.Block, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.registry.Blocks.Latest()
}

func (d *Devnet) Block(ctx context.Context, number uint64) (*chain.Block, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.registry.Blocks.Get(ctx, number)
}

func (d *Devnet) BlockByHash(ctx context.Context, hash felt.Felt) (*chain.Block, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.registry.Blocks.GetByHash(ctx, hash)
}

// BlockResponse renders [blk] together with its transactions.
func (d *Devnet) BlockResponse(ctx context.Context, blk *chain.Block) (*chain.BlockResponse, error) {
	txs := make([]*chain.Transaction, 0, len(blk.TxHashes))
	for _, hash := range blk.TxHashes {
		tx, err := d.Transaction(ctx, hash)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return blk.Response(txs), nil
}

func (d *Devnet) Transaction(ctx context.Context, hash felt.Felt) (*chain.Transaction, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.registry.Transactions.Get(ctx, hash)
}

// TransactionStatus never fails on unknown hashes, which are reported as not
// received.
func (d *Devnet) TransactionStatus(ctx context.Context, hash felt.Felt) (*chain.TransactionStatus, error) {
	tx, err := d.Transaction(ctx, hash)
	if errors.Is(err, chain.ErrNotFound) {
		return &chain.TransactionStatus{TxStatus: chain.StatusNotReceived}, nil
	}
	if err != nil {
		return nil, err
	}
	return tx.StatusResponse(), nil
}

// StorageAt returns the value at [key] of [address], zero when unset.
func (d *Devnet) StorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.engine.Read(ctx, address, key)
}

// Code returns the ABI and program of the contract at [address].
func (d *Devnet) Code(ctx context.Context, address felt.Felt) (*chain.Code, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	snap := d.engine.Snapshot()
	classHash, ok := snap.ClassHashAt(address)
	if !ok {
		return d.origin.GetCode(ctx, address)
	}
	class, ok := snap.Class(classHash)
	if !ok {
		return nil, chain.NewNotFound("class", classHash.FixedHex())
	}
	return &chain.Code{
		ABI:      class.ABI,
		Bytecode: []felt.Felt{felt.FromShortString(class.Program)},
	}, nil
}

// MessagesToL1 returns the L2->L1 message log from index [from].
func (d *Devnet) MessagesToL1(from uint64) []state.MessageToL1 {
	return d.engine.Snapshot().MessagesToL1(from)
}
