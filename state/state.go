// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state owns the world state of the devnet: contract storage, the
// class table, deployed contracts and the outgoing L2->L1 message log.
package state

import (
	"encoding/json"
	"errors"

	"github.com/ava-labs/l2devnet/felt"
)

var (
	ErrAlreadyDeployed = errors.New("contract already deployed")
	ErrTxnClosed       = errors.New("state transaction already committed")
)

// Class is the code of a contract: the program it runs and its ABI.
type Class struct {
	Program string          `json:"program"`
	ABI     json.RawMessage `json:"abi,omitempty"`
}

// MessageToL1 is a message emitted on L2 for consumption on L1.
type MessageToL1 struct {
	FromAddress felt.Felt   `serialize:"true" json:"from_address"`
	ToAddress   felt.Felt   `serialize:"true" json:"to_address"`
	Payload     []felt.Felt `serialize:"true" json:"payload"`
}

// Reader is read access to a consistent version of the state.
// Unset storage reads as zero.
type Reader interface {
	Storage(address, key felt.Felt) felt.Felt
	ClassHashAt(address felt.Felt) (felt.Felt, bool)
	Class(hash felt.Felt) (*Class, bool)
}

// Mutable is handed to the executor while a transaction runs.
type Mutable interface {
	Reader

	SetStorage(address, key, value felt.Felt)
	DeployContract(address, classHash felt.Felt) error
	DeclareClass(hash felt.Felt, class *Class)
	SendMessageToL1(msg MessageToL1)
}

func storageKey(address, key felt.Felt) []byte {
	k := make([]byte, 0, 2*felt.Len)
	k = append(k, address[:]...)
	return append(k, key[:]...)
}

func splitStorageKey(k []byte) (felt.Felt, felt.Felt) {
	var address, key felt.Felt
	copy(address[:], k[:felt.Len])
	copy(key[:], k[felt.Len:])
	return address, key
}

func toFelt(k []byte) felt.Felt {
	var f felt.Felt
	copy(f[:], k)
	return f
}
