// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/cache/metercacher"
	"github.com/ava-labs/avalanchego/database"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/origin"
)

const (
	blockCacheSize = 8192
)

var (
	errWrongVersion = errors.New("wrong version")

	// ErrNonContiguous is returned when a block does not extend the chain.
	ErrNonContiguous = errors.New("block number is not contiguous")
)

// BlockRegistry maps block numbers and hashes to blocks.
type BlockRegistry struct {
	blkCache cache.Cacher
	blockDB  database.Database
	hashDB   database.Database
	counters *counters
	origin   origin.Origin
}

func newBlockRegistry(blockDB, hashDB database.Database, c *counters, o origin.Origin, registerer prometheus.Registerer) (*BlockRegistry, error) {
	blkCache, err := metercacher.New(
		"block_cache",
		registerer,
		&cache.LRU{Size: blockCacheSize},
	)
	if err != nil {
		return nil, err
	}
	return &BlockRegistry{
		blkCache: blkCache,
		blockDB:  blockDB,
		hashDB:   hashDB,
		counters: c,
		origin:   o,
	}, nil
}

// Count is the number of locally produced blocks, which is also the number of
// the next block.
func (s *BlockRegistry) Count() (uint64, error) {
	return s.counters.get(blockCountKey)
}

// Put stores [blk]. Its number must be exactly Count.
func (s *BlockRegistry) Put(blk *chain.Block) error {
	next, err := s.Count()
	if err != nil {
		return err
	}
	if blk.Number < next {
		return fmt.Errorf("%w: block %d", ErrDuplicate, blk.Number)
	}
	if blk.Number != next {
		return fmt.Errorf("%w: got %d, expected %d", ErrNonContiguous, blk.Number, next)
	}
	if has, err := s.hashDB.Has(blk.Hash[:]); err != nil {
		return err
	} else if has {
		return fmt.Errorf("%w: block hash %s", ErrDuplicate, blk.Hash)
	}

	bytes, err := chain.Codec.Marshal(chain.CodecVersion, blk)
	if err != nil {
		return err
	}
	key := uint64Key(blk.Number)
	if err := s.blockDB.Put(key, bytes); err != nil {
		return err
	}
	if err := s.hashDB.Put(blk.Hash[:], key); err != nil {
		return err
	}
	if _, err := s.counters.increment(blockCountKey); err != nil {
		return err
	}
	s.blkCache.Put(blk.Number, blk)
	return nil
}

// Get returns the block at [number], asking the origin on a local miss.
func (s *BlockRegistry) Get(ctx context.Context, number uint64) (*chain.Block, error) {
	blk, err := s.getLocal(number)
	if err == database.ErrNotFound {
		return s.origin.GetBlock(ctx, number)
	}
	return blk, err
}

// GetByHash returns the block with [hash], asking the origin on a local miss.
func (s *BlockRegistry) GetByHash(ctx context.Context, hash felt.Felt) (*chain.Block, error) {
	key, err := s.hashDB.Get(hash[:])
	if err == database.ErrNotFound {
		return s.origin.GetBlockByHash(ctx, hash)
	}
	if err != nil {
		return nil, err
	}
	return s.getLocal(bytesToUint64(key))
}

// Latest returns the most recently produced block.
func (s *BlockRegistry) Latest() (*chain.Block, error) {
	n, err := s.Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, chain.NewNotFound("block", "latest")
	}
	return s.getLocal(n - 1)
}

func (s *BlockRegistry) getLocal(number uint64) (*chain.Block, error) {
	if blkIntf, ok := s.blkCache.Get(number); ok {
		return blkIntf.(*chain.Block), nil
	}

	blkBytes, err := s.blockDB.Get(uint64Key(number))
	if err != nil {
		return nil, err
	}

	blk := new(chain.Block)
	parsedVersion, err := chain.Codec.Unmarshal(blkBytes, blk)
	if err != nil {
		return nil, err
	}
	if parsedVersion != chain.CodecVersion {
		return nil, errWrongVersion
	}

	s.blkCache.Put(number, blk)
	return blk, nil
}

func (s *BlockRegistry) ClearCache() {
	s.blkCache.Flush()
}
