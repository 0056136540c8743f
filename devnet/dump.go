// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/codec"
	"github.com/ava-labs/avalanchego/codec/linearcodec"
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/golang/snappy"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/postman"
	"github.com/ava-labs/l2devnet/registry"
	"github.com/ava-labs/l2devnet/state"
)

const (
	dumpMagic   = "L2DEVNET"
	dumpVersion = 1

	headerSize = len(dumpMagic) + wrappers.ShortLen
)

// dumpCodec serializes whole devnet images, which outgrow the record limits
// of chain.Codec.
var dumpCodec codec.Manager

func init() {
	c := linearcodec.NewCustomMaxLength(math.MaxInt32)
	dumpCodec = codec.NewManager(math.MaxInt32)

	errs := wrappers.Errs{}
	errs.Add(dumpCodec.RegisterCodec(chain.CodecVersion, c))
	if errs.Errored() {
		panic(errs.Err)
	}
}

// configImage is the persisted form of a Config.
type configImage struct {
	LiteModeBlockHash  bool      `serialize:"true"`
	LiteModeDeployHash bool      `serialize:"true"`
	GasPrice           uint64    `serialize:"true"`
	ChainID            felt.Felt `serialize:"true"`
	HasStartTime       bool      `serialize:"true"`
	StartTime          int64     `serialize:"true"`
	DumpPath           string    `serialize:"true"`
	DumpOn             uint8     `serialize:"true"`
}

func newConfigImage(c Config) configImage {
	img := configImage{
		LiteModeBlockHash:  c.LiteModeBlockHash,
		LiteModeDeployHash: c.LiteModeDeployHash,
		GasPrice:           c.GasPrice,
		ChainID:            c.ChainID,
		DumpPath:           c.DumpPath,
		DumpOn:             uint8(c.DumpOn),
	}
	if c.StartTime != nil {
		img.HasStartTime, img.StartTime = true, *c.StartTime
	}
	return img
}

func (img configImage) config() Config {
	c := Config{
		LiteModeBlockHash:  img.LiteModeBlockHash,
		LiteModeDeployHash: img.LiteModeDeployHash,
		GasPrice:           img.GasPrice,
		ChainID:            img.ChainID,
		DumpPath:           img.DumpPath,
		DumpOn:             DumpOn(img.DumpOn),
	}
	if img.HasStartTime {
		startTime := img.StartTime
		c.StartTime = &startTime
	}
	return c
}

// image is everything needed to resume a devnet.
type image struct {
	Config          configImage         `serialize:"true"`
	BlockInfo       blockInfoImage      `serialize:"true"`
	Registry        []registry.KeyValue `serialize:"true"`
	State           state.Image         `serialize:"true"`
	Postman         postman.Image       `serialize:"true"`
	FeeTokenAddress felt.Felt           `serialize:"true"`
}

// Dump writes the devnet to [path], or to the configured dump path when
// [path] is empty.
func (d *Devnet) Dump(ctx context.Context, path string) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	if path == "" {
		path = d.config.DumpPath
	}
	if path == "" {
		return errNoDumpPath
	}
	return d.dump(path)
}

// Shutdown dumps the devnet if it is configured to dump on exit.
func (d *Devnet) Shutdown(ctx context.Context) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	if d.config.DumpOn != DumpOnExit {
		return nil
	}
	return d.dump(d.config.DumpPath)
}

// dump must be called from within the execution lane.
func (d *Devnet) dump(path string) error {
	img, err := d.image()
	if err == nil {
		err = writeDump(path, img)
	}
	if err != nil {
		d.metrics.dumps.WithLabelValues("failure").Inc()
		return err
	}
	d.metrics.dumps.WithLabelValues("success").Inc()
	d.log.Debug("dumped devnet", "path", path)
	return nil
}

func (d *Devnet) image() (*image, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	kvs, err := d.registry.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to export registries: %w", err)
	}
	st, err := d.engine.Snapshot().Export()
	if err != nil {
		return nil, fmt.Errorf("failed to export state: %w", err)
	}
	return &image{
		Config:          newConfigImage(d.config),
		BlockInfo:       d.blockInfo.image(),
		Registry:        kvs,
		State:           *st,
		Postman:         *d.postman.Export(),
		FeeTokenAddress: d.feeTokenAddress,
	}, nil
}

// Load replaces the whole devnet, including its dump configuration, with
// the dump at [path]. On failure the devnet is left as it was.
func (d *Devnet) Load(ctx context.Context, path string) error {
	if path == "" {
		return errNoDumpPath
	}
	img, err := readDump(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	snap, err := state.Import(&img.State)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}

	if err := d.acquire(ctx); err != nil {
		return err
	}
	err = d.load(img, snap)
	d.release()
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}

	d.postman.Restore(&img.Postman)
	d.log.Info("loaded devnet", "path", path)
	return nil
}

func (d *Devnet) load(img *image, snap *state.Snapshot) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.registry.Reset(img.Registry); err != nil {
		return err
	}
	d.engine.Reset(snap)
	d.blockInfo = blockInfoFromImage(d.clock, img.BlockInfo)
	d.config = img.Config.config()
	d.feeTokenAddress = img.FeeTokenAddress

	height, err := d.registry.Blocks.Count()
	if err != nil {
		return err
	}
	d.metrics.height.Set(float64(height))
	return nil
}

// writeDump replaces [path] atomically, so a crash never leaves a truncated
// dump behind.
func writeDump(path string, img *image) error {
	payload, err := dumpCodec.Marshal(chain.CodecVersion, img)
	if err != nil {
		return fmt.Errorf("failed to marshal dump: %w", err)
	}
	compressed := snappy.Encode(nil, payload)

	raw := make([]byte, headerSize+len(compressed))
	work := raw
	copy(work, dumpMagic)
	work = work[len(dumpMagic):]
	binary.BigEndian.PutUint16(work, dumpVersion)
	work = work[wrappers.ShortLen:]
	copy(work, compressed)

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readDump(path string) (*image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize || string(raw[:len(dumpMagic)]) != dumpMagic {
		return nil, errBadMagic
	}
	work := raw[len(dumpMagic):]
	if version := binary.BigEndian.Uint16(work); version != dumpVersion {
		return nil, fmt.Errorf("unsupported dump version %d", version)
	}
	work = work[wrappers.ShortLen:]

	payload, err := snappy.Decode(nil, work)
	if err != nil {
		return nil, err
	}
	img := new(image)
	parsedVersion, err := dumpCodec.Unmarshal(payload, img)
	if err != nil {
		return nil, err
	}
	if parsedVersion != chain.CodecVersion {
		return nil, fmt.Errorf("unsupported codec version %d", parsedVersion)
	}
	return img, nil
}
