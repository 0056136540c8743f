// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

// Block is a block on the chain.
// Each block carries exactly one transaction and the state update it caused.
// Blocks are immutable once stored.
type Block struct {
	Number      uint64      `serialize:"true"`
	Hash        felt.Felt   `serialize:"true"`
	ParentHash  felt.Felt   `serialize:"true"`
	Timestamp   int64       `serialize:"true"`
	GasPrice    uint64      `serialize:"true"`
	OldRoot     felt.Felt   `serialize:"true"`
	NewRoot     felt.Felt   `serialize:"true"`
	TxHashes    []felt.Felt `serialize:"true"`
	StateUpdate state.Diff  `serialize:"true"`
}

// ComputeBlockHash derives the hash of [b] from its contents. The Hash field
// itself is ignored.
func ComputeBlockHash(b *Block) felt.Felt {
	return felt.HashOnElements(
		felt.FromUint64(b.Number),
		b.NewRoot,
		b.ParentHash,
		felt.FromUint64(uint64(b.Timestamp)),
		felt.FromUint64(b.GasPrice),
		felt.HashOnElements(b.TxHashes...),
	)
}

// BlockResponse is the feeder gateway form of a block.
type BlockResponse struct {
	BlockHash           felt.Felt            `json:"block_hash"`
	ParentBlockHash     felt.Felt            `json:"parent_block_hash"`
	BlockNumber         uint64               `json:"block_number"`
	StateRoot           felt.Felt            `json:"state_root"`
	Status              Status               `json:"status"`
	GasPrice            felt.Felt            `json:"gas_price"`
	Timestamp           int64                `json:"timestamp"`
	Transactions        []TransactionBody    `json:"transactions"`
	TransactionReceipts []TransactionReceipt `json:"transaction_receipts"`
}

// Response renders [b] together with its transactions, in block order.
func (b *Block) Response(txs []*Transaction) *BlockResponse {
	r := &BlockResponse{
		BlockHash:           b.Hash,
		ParentBlockHash:     b.ParentHash,
		BlockNumber:         b.Number,
		StateRoot:           b.NewRoot,
		Status:              StatusAcceptedOnL2,
		GasPrice:            felt.FromUint64(b.GasPrice),
		Timestamp:           b.Timestamp,
		Transactions:        make([]TransactionBody, 0, len(txs)),
		TransactionReceipts: make([]TransactionReceipt, 0, len(txs)),
	}
	for _, tx := range txs {
		r.Transactions = append(r.Transactions, tx.Body())
		r.TransactionReceipts = append(r.TransactionReceipts, tx.ReceiptResponse())
	}
	return r
}

type StorageEntry struct {
	Key   felt.Felt `json:"key"`
	Value felt.Felt `json:"value"`
}

type DeployedContract struct {
	Address   felt.Felt `json:"address"`
	ClassHash felt.Felt `json:"class_hash"`
}

type StateDiff struct {
	StorageDiffs      map[string][]StorageEntry `json:"storage_diffs"`
	DeployedContracts []DeployedContract        `json:"deployed_contracts"`
}

// StateUpdate is the feeder gateway form of a block's state update.
type StateUpdate struct {
	BlockHash felt.Felt `json:"block_hash"`
	NewRoot   felt.Felt `json:"new_root"`
	OldRoot   felt.Felt `json:"old_root"`
	StateDiff StateDiff `json:"state_diff"`
}

func (b *Block) StateUpdateResponse() *StateUpdate {
	u := &StateUpdate{
		BlockHash: b.Hash,
		NewRoot:   b.NewRoot,
		OldRoot:   b.OldRoot,
		StateDiff: StateDiff{
			StorageDiffs:      make(map[string][]StorageEntry, len(b.StateUpdate.StorageDiffs)),
			DeployedContracts: make([]DeployedContract, 0, len(b.StateUpdate.DeployedContracts)),
		},
	}
	for _, sd := range b.StateUpdate.StorageDiffs {
		entries := make([]StorageEntry, 0, len(sd.Entries))
		for _, e := range sd.Entries {
			entries = append(entries, StorageEntry{Key: e.Key, Value: e.Value})
		}
		u.StateDiff.StorageDiffs[sd.Address.FixedHex()] = entries
	}
	for _, c := range b.StateUpdate.DeployedContracts {
		u.StateDiff.DeployedContracts = append(u.StateDiff.DeployedContracts, DeployedContract{
			Address:   c.Address,
			ClassHash: c.ClassHash,
		})
	}
	return u
}
