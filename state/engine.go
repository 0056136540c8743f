// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/l2devnet/felt"
)

var errStaleCommit = errors.New("commit does not extend the current state")

// Committer folds a diff into a commitment root.
type Committer interface {
	StateRoot(prev felt.Felt, diff *Diff) (felt.Felt, error)
}

// StorageFallback answers storage reads for contracts that were never
// deployed locally, e.g. the network a devnet was forked from.
type StorageFallback interface {
	GetStorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error)
}

// Commitment is a computed but not yet published state transition.
type Commitment struct {
	Pre     *Snapshot
	Post    *Snapshot
	Diff    *Diff
	OldRoot felt.Felt
	NewRoot felt.Felt
}

// Engine holds the current snapshot. Readers never block writers for longer
// than a pointer swap.
type Engine struct {
	lock     sync.RWMutex
	current  *Snapshot
	root     Committer
	fallback StorageFallback
}

func NewEngine(root Committer, fallback StorageFallback) *Engine {
	return &Engine{
		current:  NewSnapshot(),
		root:     root,
		fallback: fallback,
	}
}

// Snapshot returns the current version of the state.
func (e *Engine) Snapshot() *Snapshot {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return e.current
}

// Read returns the storage value at [key] of [address]. Contracts that are
// not deployed locally are read through the fallback, if any.
func (e *Engine) Read(ctx context.Context, address, key felt.Felt) (felt.Felt, error) {
	snap := e.Snapshot()
	if snap.IsDeployed(address) || e.fallback == nil {
		return snap.Storage(address, key), nil
	}
	return e.fallback.GetStorageAt(ctx, address, key)
}

// Commit computes the diff from [pre] to [post] and the resulting root.
// Nothing becomes visible until the commitment is applied.
func (e *Engine) Commit(pre, post *Snapshot) (*Commitment, error) {
	d := ComputeDiff(pre, post)
	root, err := e.root.StateRoot(pre.Root(), d)
	if err != nil {
		return nil, fmt.Errorf("failed to compute state root: %w", err)
	}
	return &Commitment{
		Pre:     pre,
		Post:    post.withRoot(root),
		Diff:    d,
		OldRoot: pre.Root(),
		NewRoot: root,
	}, nil
}

// Apply publishes [c]. It panics if [c] was not computed on top of the current
// snapshot, since that means two writers raced past the execution lane.
func (e *Engine) Apply(c *Commitment) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if c.Pre != e.current {
		panic(errStaleCommit)
	}
	e.current = c.Post
}

// Reset replaces the current snapshot wholesale, e.g. after a load.
func (e *Engine) Reset(s *Snapshot) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.current = s
}
