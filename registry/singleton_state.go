// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

const (
	BlockCountKey byte = iota
	TxCountKey
	ContractCountKey
)

var (
	blockCountKey    = []byte{BlockCountKey}
	txCountKey       = []byte{TxCountKey}
	contractCountKey = []byte{ContractCountKey}

	errCorruptCounter = errors.New("corrupt counter")
)

// counters is a thin wrapper around a database to provide serialization and
// de-serialization of the registry sizes.
type counters struct {
	singletonDB database.Database
}

func (c *counters) get(key []byte) (uint64, error) {
	b, err := c.singletonDB.Get(key)
	if err == database.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) != wrappers.LongLen {
		return 0, fmt.Errorf("%w: %d bytes", errCorruptCounter, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *counters) increment(key []byte) (uint64, error) {
	n, err := c.get(key)
	if err != nil {
		return 0, err
	}
	b := make([]byte, wrappers.LongLen)
	binary.BigEndian.PutUint64(b, n+1)
	return n + 1, c.singletonDB.Put(key, b)
}

func uint64Key(n uint64) []byte {
	k := make([]byte, wrappers.LongLen)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
