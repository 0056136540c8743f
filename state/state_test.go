// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/felt"
)

type countingRoot struct{}

func (countingRoot) StateRoot(prev felt.Felt, d *Diff) (felt.Felt, error) {
	return prev.Add(felt.FromUint64(uint64(len(d.StorageDiffs) + len(d.DeployedContracts)))), nil
}

type failingRoot struct{}

func (failingRoot) StateRoot(felt.Felt, *Diff) (felt.Felt, error) {
	return felt.Zero, errors.New("boom")
}

type staticFallback felt.Felt

func (s staticFallback) GetStorageAt(context.Context, felt.Felt, felt.Felt) (felt.Felt, error) {
	return felt.Felt(s), nil
}

var (
	addrA = felt.FromUint64(0xa)
	addrB = felt.FromUint64(0xb)
	key1  = felt.FromUint64(1)
	key2  = felt.FromUint64(2)
	class = felt.FromUint64(0xc1a55)
)

func TestSnapshotIsolation(t *testing.T) {
	require := require.New(t)

	base := NewSnapshot()
	txn := base.Begin()
	require.NoError(txn.DeployContract(addrA, class))
	txn.SetStorage(addrA, key1, felt.FromUint64(30))
	require.Equal(felt.FromUint64(30), txn.Storage(addrA, key1))

	// the base is untouched until and after commit
	require.Equal(felt.Zero, base.Storage(addrA, key1))
	require.False(base.IsDeployed(addrA))

	post, err := txn.Commit()
	require.NoError(err)
	require.Equal(felt.FromUint64(30), post.Storage(addrA, key1))
	require.Equal(felt.Zero, base.Storage(addrA, key1))

	_, err = txn.Commit()
	require.ErrorIs(err, ErrTxnClosed)

	// a second branch from the same base does not see the first one
	other := base.Begin()
	require.Equal(felt.Zero, other.Storage(addrA, key1))
}

func TestDeployTwice(t *testing.T) {
	require := require.New(t)

	txn := NewSnapshot().Begin()
	require.NoError(txn.DeployContract(addrA, class))
	require.ErrorIs(txn.DeployContract(addrA, class), ErrAlreadyDeployed)
}

func TestComputeDiff(t *testing.T) {
	require := require.New(t)

	txn := NewSnapshot().Begin()
	require.NoError(txn.DeployContract(addrA, class))
	txn.SetStorage(addrA, key1, felt.FromUint64(1))
	pre, err := txn.Commit()
	require.NoError(err)

	txn = pre.Begin()
	require.NoError(txn.DeployContract(addrB, class))
	txn.SetStorage(addrB, key2, felt.FromUint64(7))
	txn.SetStorage(addrB, key1, felt.FromUint64(6))
	txn.SetStorage(addrA, key1, felt.FromUint64(1)) // unchanged
	txn.SetStorage(addrA, key2, felt.Zero)          // unset stays zero
	post, err := txn.Commit()
	require.NoError(err)

	d := ComputeDiff(pre, post)
	require.Equal([]StorageDiff{{
		Address: addrB,
		Entries: []StorageEntry{
			{Key: key1, Value: felt.FromUint64(6)},
			{Key: key2, Value: felt.FromUint64(7)},
		},
	}}, d.StorageDiffs)
	require.Equal([]DeployedContract{{Address: addrB, ClassHash: class}}, d.DeployedContracts)

	require.True(ComputeDiff(post, post).IsEmpty())
	require.True(d.Equal(ComputeDiff(pre, post)))
}

func TestComputeDiffVisitsWrittenKeys(t *testing.T) {
	require := require.New(t)

	txn := NewSnapshot().Begin()
	for i := uint64(0); i < 1000; i++ {
		address := felt.FromUint64(0x1000 + i)
		require.NoError(txn.DeployContract(address, class))
		txn.SetStorage(address, key1, felt.FromUint64(i+1))
	}
	pre, err := txn.Commit()
	require.NoError(err)

	txn = pre.Begin()
	txn.SetStorage(felt.FromUint64(0x1005), key1, felt.FromUint64(42))
	txn.SetStorage(felt.FromUint64(0x1006), key1, felt.FromUint64(7)) // unchanged
	require.NoError(txn.DeployContract(addrA, class))
	post, err := txn.Commit()
	require.NoError(err)
	require.Equal(2, post.writes.storage.Len())
	require.Equal(1, post.writes.contracts.Len())

	d := ComputeDiff(pre, post)
	require.Equal([]StorageDiff{{
		Address: felt.FromUint64(0x1005),
		Entries: []StorageEntry{{Key: key1, Value: felt.FromUint64(42)}},
	}}, d.StorageDiffs)
	require.Equal([]DeployedContract{{Address: addrA, ClassHash: class}}, d.DeployedContracts)

	// a full walk agrees
	full := *post
	full.writes = nil
	require.True(d.Equal(ComputeDiff(pre, &full)))

	// the write set only applies to the snapshot it was committed on
	require.True(ComputeDiff(post, post).IsEmpty())
}

func TestEngineCommitApply(t *testing.T) {
	require := require.New(t)

	e := NewEngine(countingRoot{}, nil)
	pre := e.Snapshot()
	txn := pre.Begin()
	require.NoError(txn.DeployContract(addrA, class))
	txn.SetStorage(addrA, key1, felt.FromUint64(5))
	post, err := txn.Commit()
	require.NoError(err)

	c, err := e.Commit(pre, post)
	require.NoError(err)
	require.Equal(felt.Zero, c.OldRoot)
	require.Equal(felt.FromUint64(2), c.NewRoot)

	// not visible before apply
	require.Same(pre, e.Snapshot())
	v, err := e.Read(context.Background(), addrA, key1)
	require.NoError(err)
	require.Equal(felt.Zero, v)

	e.Apply(c)
	v, err = e.Read(context.Background(), addrA, key1)
	require.NoError(err)
	require.Equal(felt.FromUint64(5), v)
	require.Equal(felt.FromUint64(2), e.Snapshot().Root())

	// a commitment computed on a stale snapshot must not be published
	require.Panics(func() { e.Apply(c) })
}

func TestEngineCommitRootFailure(t *testing.T) {
	require := require.New(t)

	e := NewEngine(failingRoot{}, nil)
	pre := e.Snapshot()
	post, err := pre.Begin().Commit()
	require.NoError(err)
	_, err = e.Commit(pre, post)
	require.Error(err)
	require.Same(pre, e.Snapshot())
}

func TestEngineFallback(t *testing.T) {
	require := require.New(t)

	e := NewEngine(countingRoot{}, staticFallback(felt.FromUint64(99)))
	v, err := e.Read(context.Background(), addrA, key1)
	require.NoError(err)
	require.Equal(felt.FromUint64(99), v)

	pre := e.Snapshot()
	txn := pre.Begin()
	require.NoError(txn.DeployContract(addrA, class))
	post, err := txn.Commit()
	require.NoError(err)
	c, err := e.Commit(pre, post)
	require.NoError(err)
	e.Apply(c)

	// deployed locally, so unset storage is zero rather than upstream
	v, err = e.Read(context.Background(), addrA, key1)
	require.NoError(err)
	require.Equal(felt.Zero, v)
}

func TestMessagesToL1(t *testing.T) {
	require := require.New(t)

	txn := NewSnapshot().Begin()
	for i := uint64(0); i < 3; i++ {
		txn.SendMessageToL1(MessageToL1{
			FromAddress: addrA,
			ToAddress:   felt.FromUint64(i),
			Payload:     []felt.Felt{felt.FromUint64(i)},
		})
	}
	require.Len(txn.Emitted(), 3)
	s, err := txn.Commit()
	require.NoError(err)

	require.Equal(uint64(3), s.MessageCount())
	require.Len(s.MessagesToL1(0), 3)
	tail := s.MessagesToL1(2)
	require.Len(tail, 1)
	require.Equal(felt.FromUint64(2), tail[0].ToAddress)
	require.Empty(s.MessagesToL1(3))
}

func TestExportImport(t *testing.T) {
	require := require.New(t)

	txn := NewSnapshot().Begin()
	require.NoError(txn.DeployContract(addrA, class))
	txn.DeclareClass(class, &Class{Program: "balance"})
	txn.SetStorage(addrA, key1, felt.FromUint64(70))
	txn.SendMessageToL1(MessageToL1{FromAddress: addrA, ToAddress: addrB, Payload: []felt.Felt{key1}})
	s, err := txn.Commit()
	require.NoError(err)
	s = s.withRoot(felt.FromUint64(123))

	img, err := s.Export()
	require.NoError(err)
	restored, err := Import(img)
	require.NoError(err)

	require.Equal(s.Root(), restored.Root())
	require.Equal(felt.FromUint64(70), restored.Storage(addrA, key1))
	h, ok := restored.ClassHashAt(addrA)
	require.True(ok)
	require.Equal(class, h)
	c, ok := restored.Class(class)
	require.True(ok)
	require.Equal("balance", c.Program)
	require.Equal(s.MessagesToL1(0), restored.MessagesToL1(0))
	require.True(ComputeDiff(s, restored).IsEmpty())
}
