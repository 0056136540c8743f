// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

// FunctionInvocation is the trace of the entry point a transaction ran.
type FunctionInvocation struct {
	CallerAddress      felt.Felt            `json:"caller_address"`
	ContractAddress    felt.Felt            `json:"contract_address"`
	CodeAddress        felt.Felt            `json:"code_address"`
	Selector           felt.Felt            `json:"selector"`
	EntryPointType     string               `json:"entry_point_type"`
	Calldata           []felt.Felt          `json:"calldata"`
	Result             []felt.Felt          `json:"result"`
	ExecutionResources ExecutionResources   `json:"execution_resources"`
	InternalCalls      []FunctionInvocation `json:"internal_calls"`
	Events             []Event              `json:"events"`
	Messages           []state.MessageToL1  `json:"messages"`
}

type TransactionTrace struct {
	FunctionInvocation FunctionInvocation `json:"function_invocation"`
	Signature          []felt.Felt        `json:"signature"`
}

func (k Kind) entryPointType() string {
	switch k {
	case KindDeploy:
		return "CONSTRUCTOR"
	case KindL1Handler:
		return "L1_HANDLER"
	default:
		return "EXTERNAL"
	}
}

// Trace returns the execution trace of [tx]. Only accepted transactions
// have one.
func (tx *Transaction) Trace() (*TransactionTrace, error) {
	if !tx.HasBlock() {
		return nil, NewNotFound("trace of transaction", tx.Hash.Hex())
	}
	events := tx.Receipt.Events
	if events == nil {
		events = []Event{}
	}
	messages := tx.Receipt.MessagesToL1
	if messages == nil {
		messages = []state.MessageToL1{}
	}
	return &TransactionTrace{
		FunctionInvocation: FunctionInvocation{
			ContractAddress:    tx.ContractAddress,
			CodeAddress:        tx.ContractAddress,
			Selector:           tx.Selector,
			EntryPointType:     tx.Kind.entryPointType(),
			Calldata:           orEmpty(tx.Calldata),
			Result:             orEmpty(tx.Receipt.Retdata),
			ExecutionResources: tx.Receipt.Resources,
			InternalCalls:      []FunctionInvocation{},
			Events:             events,
			Messages:           messages,
		},
		Signature: orEmpty(tx.Signature),
	}, nil
}
