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
	contractCacheSize = 1024
)

// ContractRegistry maps addresses to deployed contracts.
type ContractRegistry struct {
	contractCache cache.Cacher
	contractDB    database.Database
	counters      *counters
	origin        origin.Origin
}

func newContractRegistry(db database.Database, c *counters, o origin.Origin, registerer prometheus.Registerer) (*ContractRegistry, error) {
	contractCache, err := metercacher.New(
		"contract_cache",
		registerer,
		&cache.LRU{Size: contractCacheSize},
	)
	if err != nil {
		return nil, err
	}
	return &ContractRegistry{
		contractCache: contractCache,
		contractDB:    db,
		counters:      c,
		origin:        o,
	}, nil
}

func (s *ContractRegistry) Count() (uint64, error) {
	return s.counters.get(contractCountKey)
}

func (s *ContractRegistry) Put(c *chain.ContractInstance) error {
	if has, err := s.contractDB.Has(c.Address[:]); err != nil {
		return err
	} else if has {
		return fmt.Errorf("%w: contract %s", ErrDuplicate, c.Address.FixedHex())
	}
	bytes, err := chain.Codec.Marshal(chain.CodecVersion, c)
	if err != nil {
		return err
	}
	if err := s.contractDB.Put(c.Address[:], bytes); err != nil {
		return err
	}
	if _, err := s.counters.increment(contractCountKey); err != nil {
		return err
	}
	s.contractCache.Put(c.Address, c)
	return nil
}

// GetLocal returns a contract deployed on this devnet, never consulting the
// origin.
func (s *ContractRegistry) GetLocal(address felt.Felt) (*chain.ContractInstance, error) {
	if cIntf, ok := s.contractCache.Get(address); ok {
		return cIntf.(*chain.ContractInstance), nil
	}

	cBytes, err := s.contractDB.Get(address[:])
	if err == database.ErrNotFound {
		return nil, chain.NewNotFound("contract", address.FixedHex())
	}
	if err != nil {
		return nil, err
	}

	c := new(chain.ContractInstance)
	parsedVersion, err := chain.Codec.Unmarshal(cBytes, c)
	if err != nil {
		return nil, err
	}
	if parsedVersion != chain.CodecVersion {
		return nil, errWrongVersion
	}

	s.contractCache.Put(address, c)
	return c, nil
}

// Get returns the contract at [address]. Contracts that only exist upstream
// come back without a class hash or deploy transaction.
func (s *ContractRegistry) Get(ctx context.Context, address felt.Felt) (*chain.ContractInstance, error) {
	c, err := s.GetLocal(address)
	if err == nil || !isNotFound(err) {
		return c, err
	}
	if _, err := s.origin.GetCode(ctx, address); err != nil {
		return nil, err
	}
	return &chain.ContractInstance{Address: address}, nil
}

func (s *ContractRegistry) Has(address felt.Felt) (bool, error) {
	_, err := s.GetLocal(address)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *ContractRegistry) ClearCache() {
	s.contractCache.Flush()
}
