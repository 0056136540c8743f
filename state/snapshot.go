// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/ava-labs/l2devnet/felt"
)

var (
	_ Reader  = (*Snapshot)(nil)
	_ Mutable = (*Txn)(nil)
)

// Snapshot is an immutable version of the world state. Taking one is O(1):
// successive snapshots share every subtree they did not modify.
type Snapshot struct {
	storage   *iradix.Tree
	contracts *iradix.Tree
	classes   *iradix.Tree
	messages  *iradix.Tree

	root felt.Felt

	// writes is set on snapshots produced by Txn.Commit, until the engine
	// publishes them.
	writes *writeSet
}

// writeSet holds the storage and contract keys a transaction wrote on top
// of base. Values are not kept.
type writeSet struct {
	base      *Snapshot
	storage   *iradix.Tree
	contracts *iradix.Tree
}

// NewSnapshot returns the empty state.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		storage:   iradix.New(),
		contracts: iradix.New(),
		classes:   iradix.New(),
		messages:  iradix.New(),
	}
}

// Root is the commitment root of this version.
func (s *Snapshot) Root() felt.Felt { return s.root }

func (s *Snapshot) withRoot(root felt.Felt) *Snapshot {
	cp := *s
	cp.root = root
	cp.writes = nil
	return &cp
}

func (s *Snapshot) Storage(address, key felt.Felt) felt.Felt {
	v, ok := s.storage.Get(storageKey(address, key))
	if !ok {
		return felt.Zero
	}
	return v.(felt.Felt)
}

func (s *Snapshot) ClassHashAt(address felt.Felt) (felt.Felt, bool) {
	v, ok := s.contracts.Get(address[:])
	if !ok {
		return felt.Zero, false
	}
	return v.(felt.Felt), true
}

func (s *Snapshot) IsDeployed(address felt.Felt) bool {
	_, ok := s.contracts.Get(address[:])
	return ok
}

func (s *Snapshot) Class(hash felt.Felt) (*Class, bool) {
	v, ok := s.classes.Get(hash[:])
	if !ok {
		return nil, false
	}
	return v.(*Class), true
}

func (s *Snapshot) ContractCount() int { return s.contracts.Len() }

func (s *Snapshot) MessageCount() uint64 { return uint64(s.messages.Len()) }

// MessagesToL1 returns the log entries at index [from] and above.
func (s *Snapshot) MessagesToL1(from uint64) []MessageToL1 {
	var out []MessageToL1
	it := s.messages.Root().Iterator()
	it.SeekLowerBound(indexKey(from))
	for k, v, ok := it.Next(); ok; k, v, ok = it.Next() {
		if binary.BigEndian.Uint64(k) < from {
			continue
		}
		out = append(out, v.(MessageToL1))
	}
	return out
}

// Begin opens a transaction on top of [s]. [s] itself is never modified.
func (s *Snapshot) Begin() *Txn {
	return &Txn{
		base:      s,
		storage:   s.storage.Txn(),
		contracts: s.contracts.Txn(),
		classes:   s.classes.Txn(),
		messages:  s.messages.Txn(),
		nMessages: uint64(s.messages.Len()),

		wroteStorage:   iradix.New().Txn(),
		wroteContracts: iradix.New().Txn(),
	}
}

func indexKey(i uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, i)
	return k
}

// Txn collects the writes of a single transaction.
type Txn struct {
	base      *Snapshot
	storage   *iradix.Txn
	contracts *iradix.Txn
	classes   *iradix.Txn
	messages  *iradix.Txn
	nMessages uint64

	wroteStorage   *iradix.Txn
	wroteContracts *iradix.Txn

	emitted []MessageToL1
	closed  bool
}

// Base is the snapshot the transaction started from.
func (t *Txn) Base() *Snapshot { return t.base }

func (t *Txn) Storage(address, key felt.Felt) felt.Felt {
	v, ok := t.storage.Get(storageKey(address, key))
	if !ok {
		return felt.Zero
	}
	return v.(felt.Felt)
}

func (t *Txn) ClassHashAt(address felt.Felt) (felt.Felt, bool) {
	v, ok := t.contracts.Get(address[:])
	if !ok {
		return felt.Zero, false
	}
	return v.(felt.Felt), true
}

func (t *Txn) Class(hash felt.Felt) (*Class, bool) {
	v, ok := t.classes.Get(hash[:])
	if !ok {
		return nil, false
	}
	return v.(*Class), true
}

func (t *Txn) SetStorage(address, key, value felt.Felt) {
	k := storageKey(address, key)
	t.storage.Insert(k, value)
	t.wroteStorage.Insert(k, nil)
}

func (t *Txn) DeployContract(address, classHash felt.Felt) error {
	if _, ok := t.contracts.Get(address[:]); ok {
		return ErrAlreadyDeployed
	}
	t.contracts.Insert(address[:], classHash)
	t.wroteContracts.Insert(address[:], nil)
	return nil
}

func (t *Txn) DeclareClass(hash felt.Felt, class *Class) {
	t.classes.Insert(hash[:], class)
}

func (t *Txn) SendMessageToL1(msg MessageToL1) {
	t.messages.Insert(indexKey(t.nMessages), msg)
	t.nMessages++
	t.emitted = append(t.emitted, msg)
}

// Emitted returns the messages sent during this transaction.
func (t *Txn) Emitted() []MessageToL1 { return t.emitted }

// Commit freezes the transaction into a new snapshot derived from Base.
// The commitment root is carried over until the engine folds the diff in.
func (t *Txn) Commit() (*Snapshot, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	t.closed = true
	return &Snapshot{
		storage:   t.storage.CommitOnly(),
		contracts: t.contracts.CommitOnly(),
		classes:   t.classes.CommitOnly(),
		messages:  t.messages.CommitOnly(),
		root:      t.base.root,
		writes: &writeSet{
			base:      t.base,
			storage:   t.wroteStorage.CommitOnly(),
			contracts: t.wroteContracts.CommitOnly(),
		},
	}, nil
}
