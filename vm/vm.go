// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vm defines the contract execution service the devnet drives.
package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

// EntryType selects which kind of entry point a request runs.
type EntryType uint8

const (
	Constructor EntryType = iota
	External
	L1Handler
)

func (e EntryType) String() string {
	switch e {
	case Constructor:
		return "CONSTRUCTOR"
	case External:
		return "EXTERNAL"
	case L1Handler:
		return "L1_HANDLER"
	default:
		return "UNKNOWN"
	}
}

// BlockContext is what a transaction can observe of the block it runs in.
type BlockContext struct {
	Number    uint64
	Timestamp int64
	GasPrice  uint64
}

type Request struct {
	Type            EntryType
	ContractAddress felt.Felt
	Selector        felt.Felt
	Calldata        []felt.Felt
	Caller          felt.Felt
}

type Result struct {
	Retdata      []felt.Felt
	Resources    chain.ExecutionResources
	MessagesToL1 []state.MessageToL1
	Events       []chain.Event
	// ActualFee is what the transaction is charged at the block's gas price.
	ActualFee uint64
}

// Executor runs contract code. Implementations must not retain the state
// handed to them past the call.
type Executor interface {
	// ClassHash returns the hash a class is registered under.
	ClassHash(class *state.Class) (felt.Felt, error)

	// Execute runs [req] against [st], writing its effects into [st]. A
	// rejection is reported as an *ExecutionError.
	Execute(ctx context.Context, block BlockContext, req *Request, st state.Mutable) (*Result, error)

	// Call runs [req] without side effects.
	Call(ctx context.Context, block BlockContext, req *Request, st state.Reader) ([]felt.Felt, error)

	// EstimateFee returns the fee [req] would be charged.
	EstimateFee(ctx context.Context, block BlockContext, req *Request, st state.Reader) (uint64, error)

	// StateRoot folds [diff] into the commitment root [prev].
	StateRoot(prev felt.Felt, diff *state.Diff) (felt.Felt, error)
}

// ExecutionError is a transaction rejected by the VM.
type ExecutionError struct {
	Code    string
	Message string
}

func (e *ExecutionError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Errorf(code, format string, args ...interface{}) error {
	return &ExecutionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsExecutionError reports whether [err] is a VM rejection, as opposed to a
// failure of the devnet itself.
func IsExecutionError(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e)
}
