// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/ava-labs/l2devnet/felt"
)

type StorageItem struct {
	Address felt.Felt `serialize:"true"`
	Key     felt.Felt `serialize:"true"`
	Value   felt.Felt `serialize:"true"`
}

type ClassItem struct {
	Hash       felt.Felt `serialize:"true"`
	Definition []byte    `serialize:"true"`
}

// Image is the flat, serializable form of a snapshot.
type Image struct {
	Root      felt.Felt          `serialize:"true"`
	Storage   []StorageItem      `serialize:"true"`
	Contracts []DeployedContract `serialize:"true"`
	Classes   []ClassItem        `serialize:"true"`
	Messages  []MessageToL1      `serialize:"true"`
}

// Export flattens [s] into an image.
func (s *Snapshot) Export() (*Image, error) {
	img := &Image{Root: s.root}
	walk(s.storage, func(k []byte, v interface{}) {
		address, key := splitStorageKey(k)
		img.Storage = append(img.Storage, StorageItem{Address: address, Key: key, Value: v.(felt.Felt)})
	})
	walk(s.contracts, func(k []byte, v interface{}) {
		img.Contracts = append(img.Contracts, DeployedContract{Address: toFelt(k), ClassHash: v.(felt.Felt)})
	})
	var err error
	walk(s.classes, func(k []byte, v interface{}) {
		if err != nil {
			return
		}
		var b []byte
		b, err = json.Marshal(v.(*Class))
		img.Classes = append(img.Classes, ClassItem{Hash: toFelt(k), Definition: b})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode class: %w", err)
	}
	walk(s.messages, func(_ []byte, v interface{}) {
		img.Messages = append(img.Messages, v.(MessageToL1))
	})
	return img, nil
}

// Import rebuilds the snapshot described by [img].
func Import(img *Image) (*Snapshot, error) {
	storage := iradix.New().Txn()
	for _, item := range img.Storage {
		storage.Insert(storageKey(item.Address, item.Key), item.Value)
	}
	contracts := iradix.New().Txn()
	for _, c := range img.Contracts {
		address := c.Address
		contracts.Insert(address[:], c.ClassHash)
	}
	classes := iradix.New().Txn()
	for _, item := range img.Classes {
		class := new(Class)
		if err := json.Unmarshal(item.Definition, class); err != nil {
			return nil, fmt.Errorf("failed to decode class %s: %w", item.Hash, err)
		}
		hash := item.Hash
		classes.Insert(hash[:], class)
	}
	messages := iradix.New().Txn()
	for i, msg := range img.Messages {
		k := make([]byte, 8)
		binary.BigEndian.PutUint64(k, uint64(i))
		messages.Insert(k, msg)
	}
	return &Snapshot{
		storage:   storage.CommitOnly(),
		contracts: contracts.CommitOnly(),
		classes:   classes.CommitOnly(),
		messages:  messages.CommitOnly(),
		root:      img.Root,
	}, nil
}
