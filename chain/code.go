// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"encoding/json"
	"fmt"

	"github.com/ava-labs/l2devnet/felt"
)

// Code is the feeder gateway form of a deployed contract's code.
type Code struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode []felt.Felt     `json:"bytecode"`
}

// Record converts a feeder gateway transaction into a registry record.
// Receipt details are not part of the response and stay empty.
func (r *TransactionResponse) Record() (*Transaction, error) {
	if r.Status == StatusNotReceived || r.Transaction == nil {
		return nil, ErrNotFound
	}
	body := r.Transaction
	address, err := felt.Parse(body.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address: %w", err)
	}
	tx := &Transaction{
		Hash:            body.TransactionHash,
		Kind:            body.Type,
		ContractAddress: address,
		Calldata:        body.Calldata,
		Status:          r.Status,
	}
	if body.EntryPointSelector != nil {
		tx.Selector = *body.EntryPointSelector
	}
	if body.ClassHash != nil {
		tx.ClassHash = *body.ClassHash
	}
	if body.ContractAddressSalt != nil {
		tx.Salt = *body.ContractAddressSalt
	}
	if body.Type == KindDeploy {
		tx.Calldata = body.ConstructorCalldata
	}
	if body.MaxFee != nil {
		tx.MaxFee = *body.MaxFee
	}
	if body.Nonce != nil {
		tx.Nonce = body.Nonce.Uint64()
	}
	if r.BlockHash != nil {
		tx.BlockHash = *r.BlockHash
	}
	if r.BlockNumber != nil {
		tx.BlockNumber = *r.BlockNumber
	}
	if r.FailureReason != nil {
		tx.FailureMessage = r.FailureReason.ErrorMessage
	}
	return tx, nil
}

// Record converts a feeder gateway block into a registry record.
func (r *BlockResponse) Record() *Block {
	blk := &Block{
		Number:     r.BlockNumber,
		Hash:       r.BlockHash,
		ParentHash: r.ParentBlockHash,
		Timestamp:  r.Timestamp,
		GasPrice:   r.GasPrice.Uint64(),
		NewRoot:    r.StateRoot,
		TxHashes:   make([]felt.Felt, 0, len(r.Transactions)),
	}
	for _, tx := range r.Transactions {
		blk.TxHashes = append(blk.TxHashes, tx.TransactionHash)
	}
	return blk
}
