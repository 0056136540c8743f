// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/ava-labs/l2devnet/felt"
)

type StorageEntry struct {
	Key   felt.Felt `serialize:"true" json:"key"`
	Value felt.Felt `serialize:"true" json:"value"`
}

type StorageDiff struct {
	Address felt.Felt      `serialize:"true" json:"address"`
	Entries []StorageEntry `serialize:"true" json:"entries"`
}

type DeployedContract struct {
	Address   felt.Felt `serialize:"true" json:"address"`
	ClassHash felt.Felt `serialize:"true" json:"class_hash"`
}

// Diff lists what changed between two snapshots. Both slices are ordered
// by address, and entries by key.
type Diff struct {
	StorageDiffs      []StorageDiff      `serialize:"true" json:"storage_diffs"`
	DeployedContracts []DeployedContract `serialize:"true" json:"deployed_contracts"`
}

func (d *Diff) IsEmpty() bool {
	return len(d.StorageDiffs) == 0 && len(d.DeployedContracts) == 0
}

// ComputeDiff returns every storage entry whose value in [post] differs from
// [pre] and every contract deployed in [post] but not in [pre]. When [post]
// was committed directly on top of [pre], only the keys it wrote are visited.
func ComputeDiff(pre, post *Snapshot) *Diff {
	d := &Diff{
		StorageDiffs:      []StorageDiff{},
		DeployedContracts: []DeployedContract{},
	}
	storage, contracts := post.storage, post.contracts
	if w := post.writes; w != nil && w.base == pre {
		storage, contracts = w.storage, w.contracts
	}
	walk(storage, func(k []byte, _ interface{}) {
		v, _ := post.storage.Get(k)
		value := v.(felt.Felt)
		old := felt.Zero
		if prev, ok := pre.storage.Get(k); ok {
			old = prev.(felt.Felt)
		}
		if old == value {
			return
		}
		address, key := splitStorageKey(k)
		n := len(d.StorageDiffs)
		if n == 0 || d.StorageDiffs[n-1].Address != address {
			d.StorageDiffs = append(d.StorageDiffs, StorageDiff{Address: address})
			n++
		}
		d.StorageDiffs[n-1].Entries = append(d.StorageDiffs[n-1].Entries, StorageEntry{Key: key, Value: value})
	})
	walk(contracts, func(k []byte, _ interface{}) {
		if _, ok := pre.contracts.Get(k); ok {
			return
		}
		v, _ := post.contracts.Get(k)
		d.DeployedContracts = append(d.DeployedContracts, DeployedContract{
			Address:   toFelt(k),
			ClassHash: v.(felt.Felt),
		})
	})
	return d
}

// walk visits the leaves of [t] in ascending key order.
func walk(t *iradix.Tree, fn func(k []byte, v interface{})) {
	t.Root().Walk(func(k []byte, v interface{}) bool {
		fn(k, v)
		return false
	})
}

// Equal reports whether two diffs carry the same entries in the same order.
func (d *Diff) Equal(o *Diff) bool {
	if len(d.StorageDiffs) != len(o.StorageDiffs) || len(d.DeployedContracts) != len(o.DeployedContracts) {
		return false
	}
	for i, sd := range d.StorageDiffs {
		od := o.StorageDiffs[i]
		if sd.Address != od.Address || len(sd.Entries) != len(od.Entries) {
			return false
		}
		for j, e := range sd.Entries {
			if e != od.Entries[j] {
				return false
			}
		}
	}
	for i, c := range d.DeployedContracts {
		if c != o.DeployedContracts[i] {
			return false
		}
	}
	return true
}
