// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"fmt"
	"unicode/utf8"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

const (
	FailureCode = "TRANSACTION_FAILED"

	// strings are length-prefixed with a uint16 by the codec
	maxFailureMessageLen = 1 << 15
)

type ExecutionResources struct {
	NSteps       uint64 `serialize:"true" json:"n_steps"`
	NMemoryHoles uint64 `serialize:"true" json:"n_memory_holes"`
}

type Event struct {
	FromAddress felt.Felt   `serialize:"true" json:"from_address"`
	Keys        []felt.Felt `serialize:"true" json:"keys"`
	Data        []felt.Felt `serialize:"true" json:"data"`
}

type Receipt struct {
	Resources    ExecutionResources  `serialize:"true"`
	MessagesToL1 []state.MessageToL1 `serialize:"true"`
	Events       []Event             `serialize:"true"`
	ActualFee    uint64              `serialize:"true"`
	Retdata      []felt.Felt         `serialize:"true"`
}

// Transaction is the record of a received transaction.
// For deploys, Calldata holds the constructor calldata.
type Transaction struct {
	Hash            felt.Felt   `serialize:"true"`
	Kind            Kind        `serialize:"true"`
	ContractAddress felt.Felt   `serialize:"true"`
	Selector        felt.Felt   `serialize:"true"`
	Calldata        []felt.Felt `serialize:"true"`
	ClassHash       felt.Felt   `serialize:"true"`
	Salt            felt.Felt   `serialize:"true"`
	MaxFee          felt.Felt   `serialize:"true"`
	Signature       []felt.Felt `serialize:"true"`
	Nonce           uint64      `serialize:"true"`
	Status          Status      `serialize:"true"`
	FailureMessage  string      `serialize:"true"`
	BlockHash       felt.Felt   `serialize:"true"`
	BlockNumber     uint64      `serialize:"true"`
	Receipt         Receipt     `serialize:"true"`
}

// HasBlock reports whether the transaction is linked to a block.
func (tx *Transaction) HasBlock() bool { return tx.Status == StatusAcceptedOnL2 }

// Accept links [tx] to [blk]. Transactions transition exactly once.
func (tx *Transaction) Accept(blk *Block) {
	if tx.Status != StatusReceived {
		panic(fmt.Sprintf("transaction %s accepted in status %s", tx.Hash, tx.Status))
	}
	tx.Status = StatusAcceptedOnL2
	tx.BlockHash = blk.Hash
	tx.BlockNumber = blk.Number
}

// Reject records the failure reason. A rejected transaction never has a block.
func (tx *Transaction) Reject(msg string) {
	if tx.Status != StatusReceived {
		panic(fmt.Sprintf("transaction %s rejected in status %s", tx.Hash, tx.Status))
	}
	if len(msg) > maxFailureMessageLen {
		n := maxFailureMessageLen
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n]
	}
	tx.Status = StatusRejected
	tx.FailureMessage = msg
}

// TransactionBody is the feeder gateway form of a transaction's contents.
type TransactionBody struct {
	Type                Kind        `json:"type"`
	TransactionHash     felt.Felt   `json:"transaction_hash"`
	ContractAddress     string      `json:"contract_address"`
	EntryPointSelector  *felt.Felt  `json:"entry_point_selector,omitempty"`
	Calldata            []felt.Felt `json:"calldata,omitempty"`
	ClassHash           *felt.Felt  `json:"class_hash,omitempty"`
	ContractAddressSalt *felt.Felt  `json:"contract_address_salt,omitempty"`
	ConstructorCalldata []felt.Felt `json:"constructor_calldata,omitempty"`
	MaxFee              *felt.Felt  `json:"max_fee,omitempty"`
	Signature           []felt.Felt `json:"signature,omitempty"`
	Nonce               *felt.Felt  `json:"nonce,omitempty"`
}

type FailureReason struct {
	Code         string `json:"code"`
	ErrorMessage string `json:"error_message"`
	TxID         uint64 `json:"tx_id"`
}

// TransactionResponse is the feeder gateway form of get_transaction.
type TransactionResponse struct {
	Status           Status           `json:"status"`
	Transaction      *TransactionBody `json:"transaction,omitempty"`
	TransactionIndex *int             `json:"transaction_index,omitempty"`
	BlockHash        *felt.Felt       `json:"block_hash,omitempty"`
	BlockNumber      *uint64          `json:"block_number,omitempty"`
	FailureReason    *FailureReason   `json:"transaction_failure_reason,omitempty"`
}

type TransactionReceipt struct {
	Status             Status              `json:"status"`
	TransactionHash    felt.Felt           `json:"transaction_hash"`
	TransactionIndex   *int                `json:"transaction_index,omitempty"`
	BlockHash          *felt.Felt          `json:"block_hash,omitempty"`
	BlockNumber        *uint64             `json:"block_number,omitempty"`
	ExecutionResources *ExecutionResources `json:"execution_resources,omitempty"`
	L2ToL1Messages     []state.MessageToL1 `json:"l2_to_l1_messages"`
	Events             []Event             `json:"events"`
	ActualFee          felt.Felt           `json:"actual_fee"`
	FailureReason      *FailureReason      `json:"transaction_failure_reason,omitempty"`
}

type TransactionStatus struct {
	TxStatus        Status         `json:"tx_status"`
	BlockHash       *felt.Felt     `json:"block_hash,omitempty"`
	TxFailureReason *FailureReason `json:"tx_failure_reason,omitempty"`
}

func (tx *Transaction) Body() TransactionBody {
	b := TransactionBody{
		Type:            tx.Kind,
		TransactionHash: tx.Hash,
		ContractAddress: tx.ContractAddress.FixedHex(),
	}
	calldata := orEmpty(tx.Calldata)
	switch tx.Kind {
	case KindDeploy:
		classHash, salt := tx.ClassHash, tx.Salt
		b.ClassHash = &classHash
		b.ContractAddressSalt = &salt
		b.ConstructorCalldata = calldata
	case KindInvoke:
		selector, maxFee := tx.Selector, tx.MaxFee
		b.EntryPointSelector = &selector
		b.Calldata = calldata
		b.MaxFee = &maxFee
		b.Signature = orEmpty(tx.Signature)
	case KindL1Handler:
		selector, nonce := tx.Selector, felt.FromUint64(tx.Nonce)
		b.EntryPointSelector = &selector
		b.Calldata = calldata
		b.Nonce = &nonce
	}
	return b
}

func (tx *Transaction) failureReason() *FailureReason {
	if tx.Status != StatusRejected {
		return nil
	}
	return &FailureReason{
		Code:         FailureCode,
		ErrorMessage: tx.FailureMessage,
		TxID:         tx.Nonce,
	}
}

func (tx *Transaction) Response() *TransactionResponse {
	body := tx.Body()
	r := &TransactionResponse{
		Status:        tx.Status,
		Transaction:   &body,
		FailureReason: tx.failureReason(),
	}
	if tx.HasBlock() {
		index, blockHash, blockNumber := 0, tx.BlockHash, tx.BlockNumber
		r.TransactionIndex = &index
		r.BlockHash = &blockHash
		r.BlockNumber = &blockNumber
	}
	return r
}

func (tx *Transaction) ReceiptResponse() TransactionReceipt {
	r := TransactionReceipt{
		Status:          tx.Status,
		TransactionHash: tx.Hash,
		L2ToL1Messages:  tx.Receipt.MessagesToL1,
		Events:          tx.Receipt.Events,
		ActualFee:       felt.FromUint64(tx.Receipt.ActualFee),
		FailureReason:   tx.failureReason(),
	}
	if r.L2ToL1Messages == nil {
		r.L2ToL1Messages = []state.MessageToL1{}
	}
	if r.Events == nil {
		r.Events = []Event{}
	}
	if tx.HasBlock() {
		index, blockHash, blockNumber := 0, tx.BlockHash, tx.BlockNumber
		resources := tx.Receipt.Resources
		r.TransactionIndex = &index
		r.BlockHash = &blockHash
		r.BlockNumber = &blockNumber
		r.ExecutionResources = &resources
	}
	return r
}

func (tx *Transaction) StatusResponse() *TransactionStatus {
	s := &TransactionStatus{
		TxStatus:        tx.Status,
		TxFailureReason: tx.failureReason(),
	}
	if tx.HasBlock() {
		blockHash := tx.BlockHash
		s.BlockHash = &blockHash
	}
	return s
}

func orEmpty(fs []felt.Felt) []felt.Felt {
	if fs == nil {
		return []felt.Felt{}
	}
	return fs
}

// ContractInstance is the registry record of a deployed contract. Its
// storage lives in the state engine.
type ContractInstance struct {
	Address      felt.Felt `serialize:"true" json:"address"`
	ClassHash    felt.Felt `serialize:"true" json:"class_hash"`
	DeployTxHash felt.Felt `serialize:"true" json:"deploy_transaction_hash"`
}
