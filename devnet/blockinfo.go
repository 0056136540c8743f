// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"github.com/ava-labs/avalanchego/utils/timer/mockable"

	"github.com/ava-labs/l2devnet/vm"
)

// BlockInfo generates the number, gas price and timestamp of the next block.
// Timestamps are the wall clock shifted by a cumulative offset, unless a
// one-shot absolute timestamp was set.
//
// BlockInfo is not safe for concurrent use. The devnet mutates a clone inside
// the execution lane and swaps it in once the block is committed.
type BlockInfo struct {
	clock    *mockable.Clock
	gasPrice uint64

	offset  int64
	next    int64
	hasNext bool
}

func newBlockInfo(clock *mockable.Clock, gasPrice uint64, startTime *int64) *BlockInfo {
	b := &BlockInfo{clock: clock, gasPrice: gasPrice}
	if startTime != nil {
		b.next, b.hasNext = *startTime, true
	}
	return b
}

func (b *BlockInfo) now() int64 { return b.clock.Time().Unix() }

// Next returns the context of block [number]. A pending absolute timestamp is
// consumed and folded into the offset, so later blocks keep the same delta
// from the wall clock.
func (b *BlockInfo) Next(number uint64) vm.BlockContext {
	now := b.now()
	ts := now + b.offset
	if b.hasNext {
		ts = b.next
		b.offset = b.next - now
		b.hasNext = false
	}
	return vm.BlockContext{
		Number:    number,
		Timestamp: ts,
		GasPrice:  b.gasPrice,
	}
}

// Peek is the context Next would return, without consuming anything.
func (b *BlockInfo) Peek(number uint64) vm.BlockContext {
	return b.clone().Next(number)
}

// Increase shifts every following timestamp by [delta] seconds.
func (b *BlockInfo) Increase(delta int64) error {
	if delta <= 0 {
		return validationf("Time value must be greater than 0.")
	}
	b.offset += delta
	return nil
}

// SetNext makes [ts] the timestamp of the next block.
func (b *BlockInfo) SetNext(ts int64) error {
	if ts < 0 {
		return validationf("Time value must be greater than or equal to 0.")
	}
	b.next, b.hasNext = ts, true
	return nil
}

func (b *BlockInfo) clone() *BlockInfo {
	c := *b
	return &c
}

// blockInfoImage is the persisted form of a BlockInfo.
type blockInfoImage struct {
	GasPrice uint64 `serialize:"true"`
	Offset   int64  `serialize:"true"`
	Next     int64  `serialize:"true"`
	HasNext  bool   `serialize:"true"`
}

func (b *BlockInfo) image() blockInfoImage {
	return blockInfoImage{
		GasPrice: b.gasPrice,
		Offset:   b.offset,
		Next:     b.next,
		HasNext:  b.hasNext,
	}
}

func blockInfoFromImage(clock *mockable.Clock, img blockInfoImage) *BlockInfo {
	return &BlockInfo{
		clock:    clock,
		gasPrice: img.GasPrice,
		offset:   img.Offset,
		next:     img.Next,
		hasNext:  img.HasNext,
	}
}
