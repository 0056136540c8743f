// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"context"
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
	txCacheSize = 8192
)

// TxRegistry maps transaction hashes to transaction records. Records are
// written once, in their terminal status.
type TxRegistry struct {
	txCache  cache.Cacher
	txDB     database.Database
	counters *counters
	origin   origin.Origin
}

func newTxRegistry(db database.Database, c *counters, o origin.Origin, registerer prometheus.Registerer) (*TxRegistry, error) {
	txCache, err := metercacher.New(
		"tx_cache",
		registerer,
		&cache.LRU{Size: txCacheSize},
	)
	if err != nil {
		return nil, err
	}
	return &TxRegistry{
		txCache:  txCache,
		txDB:     db,
		counters: c,
		origin:   o,
	}, nil
}

// Count is the number of transactions received so far.
func (s *TxRegistry) Count() (uint64, error) {
	return s.counters.get(txCountKey)
}

func (s *TxRegistry) Put(tx *chain.Transaction) error {
	if has, err := s.txDB.Has(tx.Hash[:]); err != nil {
		return err
	} else if has {
		return fmt.Errorf("%w: transaction %s", ErrDuplicate, tx.Hash)
	}
	bytes, err := chain.Codec.Marshal(chain.CodecVersion, tx)
	if err != nil {
		return err
	}
	if err := s.txDB.Put(tx.Hash[:], bytes); err != nil {
		return err
	}
	if _, err := s.counters.increment(txCountKey); err != nil {
		return err
	}
	s.txCache.Put(tx.Hash, tx)
	return nil
}

// Get returns the transaction with [hash], asking the origin on a local miss.
func (s *TxRegistry) Get(ctx context.Context, hash felt.Felt) (*chain.Transaction, error) {
	if txIntf, ok := s.txCache.Get(hash); ok {
		return txIntf.(*chain.Transaction), nil
	}

	txBytes, err := s.txDB.Get(hash[:])
	if err == database.ErrNotFound {
		return s.origin.GetTransaction(ctx, hash)
	}
	if err != nil {
		return nil, err
	}

	tx := new(chain.Transaction)
	parsedVersion, err := chain.Codec.Unmarshal(txBytes, tx)
	if err != nil {
		return nil, err
	}
	if parsedVersion != chain.CodecVersion {
		return nil, errWrongVersion
	}

	s.txCache.Put(hash, tx)
	return tx, nil
}

func (s *TxRegistry) ClearCache() {
	s.txCache.Flush()
}
