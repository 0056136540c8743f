// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package origin answers lookups the devnet cannot serve locally.
package origin

import (
	"context"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
)

var (
	_ Origin = Null{}
	_ Origin = (*Fork)(nil)
)

// Origin is a read-only view of the upstream chain a devnet was forked from.
// Misses are reported with an error matching chain.ErrNotFound so they can be
// told apart from transport failures.
type Origin interface {
	GetTransaction(ctx context.Context, hash felt.Felt) (*chain.Transaction, error)
	GetBlock(ctx context.Context, number uint64) (*chain.Block, error)
	GetBlockByHash(ctx context.Context, hash felt.Felt) (*chain.Block, error)
	GetCode(ctx context.Context, address felt.Felt) (*chain.Code, error)
	GetStorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error)
}

// Null is the origin of a devnet that was not forked: nothing exists upstream
// and all storage reads as zero.
type Null struct{}

func (Null) GetTransaction(_ context.Context, hash felt.Felt) (*chain.Transaction, error) {
	return nil, chain.NewNotFound("transaction", hash.Hex())
}

func (Null) GetBlock(_ context.Context, number uint64) (*chain.Block, error) {
	return nil, chain.NewNotFound("block number", felt.FromUint64(number).Decimal())
}

func (Null) GetBlockByHash(_ context.Context, hash felt.Felt) (*chain.Block, error) {
	return nil, chain.NewNotFound("block", hash.Hex())
}

func (Null) GetCode(_ context.Context, address felt.Felt) (*chain.Code, error) {
	return nil, chain.NewNotFound("contract", address.FixedHex())
}

func (Null) GetStorageAt(context.Context, felt.Felt, felt.Felt) (felt.Felt, error) {
	return felt.Zero, nil
}
