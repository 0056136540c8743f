// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

// IncreaseTime shifts the timestamp of every following block by [delta]
// seconds.
func (d *Devnet) IncreaseTime(ctx context.Context, delta int64) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	info := d.blockInfo.clone()
	if err := info.Increase(delta); err != nil {
		return err
	}
	d.swapBlockInfo(info)
	d.log.Info("increased time", "delta", delta)
	return nil
}

// SetTime makes [ts] the timestamp of the next block.
func (d *Devnet) SetTime(ctx context.Context, ts int64) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	info := d.blockInfo.clone()
	if err := info.SetNext(ts); err != nil {
		return err
	}
	d.swapBlockInfo(info)
	d.log.Info("set next block time", "timestamp", ts)
	return nil
}

func (d *Devnet) swapBlockInfo(info *BlockInfo) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.blockInfo = info
}

// Reset brings the devnet back to genesis. The configuration is kept and the
// postman forgets its messaging contract.
func (d *Devnet) Reset(ctx context.Context) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	err := d.reset()
	d.release()
	if err != nil {
		return err
	}

	// A flush may be waiting for the lane, so the postman is restored only
	// once the lane is free.
	d.postman.Restore(nil)
	d.log.Info("devnet restarted")
	return nil
}

func (d *Devnet) reset() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.registry.Reset(nil); err != nil {
		return err
	}
	d.engine.Reset(state.NewSnapshot())
	d.blockInfo = newBlockInfo(d.clock, d.config.GasPrice, d.config.StartTime)
	d.feeTokenAddress = felt.Zero
	d.metrics.height.Set(0)
	return d.genesis()
}
