// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry stores the contract, transaction and block records of a
// devnet on top of an avalanchego database.
package registry

import (
	"errors"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/origin"
)

var (
	// These are prefixes for db keys.
	// It's important to set different prefixes for each separate database objects.
	singletonStatePrefix = []byte("singleton")
	blockStatePrefix     = []byte("block")
	blockHashStatePrefix = []byte("blockHash")
	txStatePrefix        = []byte("tx")
	contractStatePrefix  = []byte("contract")

	// ErrDuplicate is returned when a record is stored twice. It is never
	// expected in correct operation.
	ErrDuplicate = errors.New("duplicate record")
)

// KeyValue is a raw database entry, used to dump and load registries.
type KeyValue struct {
	Key   []byte `serialize:"true"`
	Value []byte `serialize:"true"`
}

// State groups the three registries over a single versioned database.
// Writes are staged until Commit; Abort discards them.
type State struct {
	Blocks       *BlockRegistry
	Transactions *TxRegistry
	Contracts    *ContractRegistry

	baseDB *versiondb.Database
}

func New(db database.Database, o origin.Origin, registerer prometheus.Registerer) (*State, error) {
	// create a new baseDB
	baseDB := versiondb.New(db)

	c := &counters{singletonDB: prefixdb.New(singletonStatePrefix, baseDB)}
	blocks, err := newBlockRegistry(
		prefixdb.New(blockStatePrefix, baseDB),
		prefixdb.New(blockHashStatePrefix, baseDB),
		c,
		o,
		registerer,
	)
	if err != nil {
		return nil, err
	}
	txs, err := newTxRegistry(prefixdb.New(txStatePrefix, baseDB), c, o, registerer)
	if err != nil {
		return nil, err
	}
	contracts, err := newContractRegistry(prefixdb.New(contractStatePrefix, baseDB), c, o, registerer)
	if err != nil {
		return nil, err
	}
	return &State{
		Blocks:       blocks,
		Transactions: txs,
		Contracts:    contracts,
		baseDB:       baseDB,
	}, nil
}

// Commit commits pending operations to the underlying database.
func (s *State) Commit() error {
	return s.baseDB.Commit()
}

// Abort discards pending operations and everything cached from them.
func (s *State) Abort() {
	s.baseDB.Abort()
	s.clearCaches()
}

func (s *State) clearCaches() {
	s.Blocks.ClearCache()
	s.Transactions.ClearCache()
	s.Contracts.ClearCache()
}

func (s *State) Close() error {
	return s.baseDB.Close()
}

// Export returns every committed and pending entry of the registries.
func (s *State) Export() ([]KeyValue, error) {
	it := s.baseDB.NewIterator()
	defer it.Release()

	var kvs []KeyValue
	for it.Next() {
		kvs = append(kvs, KeyValue{
			Key:   append([]byte(nil), it.Key()...),
			Value: append([]byte(nil), it.Value()...),
		})
	}
	return kvs, it.Error()
}

// Reset replaces the content of the registries with [kvs] and commits.
// Pending operations are discarded.
func (s *State) Reset(kvs []KeyValue) error {
	s.Abort()

	it := s.baseDB.NewIterator()
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return err
	}

	errs := wrappers.Errs{}
	for _, k := range keys {
		errs.Add(s.baseDB.Delete(k))
	}
	for _, kv := range kvs {
		errs.Add(s.baseDB.Put(kv.Key, kv.Value))
	}
	if errs.Errored() {
		s.Abort()
		return errs.Err
	}
	if err := s.Commit(); err != nil {
		s.Abort()
		return err
	}
	s.clearCaches()
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, chain.ErrNotFound) || err == database.ErrNotFound
}
