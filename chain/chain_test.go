// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

func TestContractAddressIsPure(t *testing.T) {
	require := require.New(t)

	salt, class := felt.FromUint64(0x99), felt.FromUint64(0xc1a55)
	calldata := []felt.Felt{felt.Zero}

	a := ContractAddress(salt, class, calldata, felt.Zero)
	require.Equal(a, ContractAddress(salt, class, []felt.Felt{felt.Zero}, felt.Zero))
	require.NotEqual(a, ContractAddress(felt.FromUint64(0x98), class, calldata, felt.Zero))
	require.NotEqual(a, ContractAddress(salt, class, []felt.Felt{felt.One}, felt.Zero))
	require.NotEqual(a, ContractAddress(salt, felt.One, calldata, felt.Zero))
}

func TestTxHashDependsOnNonceAndKind(t *testing.T) {
	require := require.New(t)

	chainID := felt.FromShortString("SN_GOERLI")
	addr, sel := felt.FromUint64(1), felt.Selector("increase_balance")
	calldata := []felt.Felt{felt.FromUint64(10), felt.FromUint64(20)}

	h0 := TxHash(KindInvoke, addr, sel, calldata, felt.Zero, chainID, 0)
	require.Equal(h0, TxHash(KindInvoke, addr, sel, calldata, felt.Zero, chainID, 0))
	require.NotEqual(h0, TxHash(KindInvoke, addr, sel, calldata, felt.Zero, chainID, 1))
	require.NotEqual(h0, TxHash(KindL1Handler, addr, sel, calldata, felt.Zero, chainID, 0))
}

func TestTransactionTransitions(t *testing.T) {
	require := require.New(t)

	tx := &Transaction{Hash: felt.One, Kind: KindInvoke, Status: StatusReceived}
	blk := &Block{Number: 3, Hash: felt.FromUint64(3)}
	tx.Accept(blk)
	require.True(tx.HasBlock())
	require.Equal(uint64(3), tx.BlockNumber)
	require.Panics(func() { tx.Accept(blk) })
	require.Panics(func() { tx.Reject("late") })

	rejected := &Transaction{Hash: felt.FromUint64(2), Kind: KindInvoke, Status: StatusReceived, Nonce: 4}
	rejected.Reject("boom")
	require.False(rejected.HasBlock())
	r := rejected.Response()
	require.Nil(r.BlockHash)
	require.Equal(&FailureReason{Code: FailureCode, ErrorMessage: "boom", TxID: 4}, r.FailureReason)
}

func TestLongFailureMessage(t *testing.T) {
	require := require.New(t)

	// the limit falls inside the second byte of a three byte rune
	msg := strings.Repeat("a", maxFailureMessageLen-1) + strings.Repeat("€", 4)
	tx := &Transaction{Hash: felt.One, Kind: KindInvoke, Status: StatusReceived}
	tx.Reject(msg)
	require.True(utf8.ValidString(tx.FailureMessage))
	require.Equal(strings.Repeat("a", maxFailureMessageLen-1), tx.FailureMessage)

	ascii := &Transaction{Hash: felt.One, Kind: KindInvoke, Status: StatusReceived}
	ascii.Reject(strings.Repeat("b", maxFailureMessageLen+10))
	require.Len(ascii.FailureMessage, maxFailureMessageLen)
}

func TestTransactionWireForm(t *testing.T) {
	require := require.New(t)

	tx := &Transaction{
		Hash:            felt.FromUint64(0xabc),
		Kind:            KindInvoke,
		ContractAddress: felt.FromUint64(0x1),
		Selector:        felt.FromUint64(0x2),
		Calldata:        []felt.Felt{felt.FromUint64(10)},
		Status:          StatusReceived,
	}
	tx.Accept(&Block{Number: 1, Hash: felt.FromUint64(0x1)})

	b, err := json.Marshal(tx.Response())
	require.NoError(err)
	var got map[string]interface{}
	require.NoError(json.Unmarshal(b, &got))
	require.Equal("ACCEPTED_ON_L2", got["status"])
	require.Equal(float64(0), got["transaction_index"])
	require.Equal("0x1", got["block_hash"])
	require.Equal(float64(1), got["block_number"])
	body := got["transaction"].(map[string]interface{})
	require.Equal("INVOKE_FUNCTION", body["type"])
	require.Equal("0x0000000000000000000000000000000000000000000000000000000000000001", body["contract_address"])
	require.Equal([]interface{}{"0xa"}, body["calldata"])
	require.NotContains(got, "transaction_failure_reason")

	var decoded TransactionResponse
	require.NoError(json.Unmarshal(b, &decoded))
	require.Equal(StatusAcceptedOnL2, decoded.Status)
	require.Equal(KindInvoke, decoded.Transaction.Type)

	receipt := tx.ReceiptResponse()
	b, err = json.Marshal(receipt)
	require.NoError(err)
	require.Contains(string(b), `"l2_to_l1_messages":[]`)
	require.Contains(string(b), `"events":[]`)
}

func TestStateUpdateResponse(t *testing.T) {
	require := require.New(t)

	addr := felt.FromUint64(0x5)
	blk := &Block{
		Hash:    felt.One,
		OldRoot: felt.Zero,
		NewRoot: felt.FromUint64(9),
		StateUpdate: state.Diff{
			StorageDiffs: []state.StorageDiff{{
				Address: addr,
				Entries: []state.StorageEntry{{Key: felt.One, Value: felt.FromUint64(30)}},
			}},
			DeployedContracts: []state.DeployedContract{{Address: addr, ClassHash: felt.FromUint64(7)}},
		},
	}
	u := blk.StateUpdateResponse()
	require.Equal([]StorageEntry{{Key: felt.One, Value: felt.FromUint64(30)}}, u.StateDiff.StorageDiffs[addr.FixedHex()])
	require.Equal([]DeployedContract{{Address: addr, ClassHash: felt.FromUint64(7)}}, u.StateDiff.DeployedContracts)
}

func TestCodecRoundTrip(t *testing.T) {
	require := require.New(t)

	blk := &Block{
		Number:     2,
		ParentHash: felt.One,
		Timestamp:  1700000000,
		GasPrice:   100,
		NewRoot:    felt.FromUint64(77),
		TxHashes:   []felt.Felt{felt.FromUint64(5)},
	}
	blk.Hash = ComputeBlockHash(blk)

	b, err := Codec.Marshal(CodecVersion, blk)
	require.NoError(err)
	var decoded Block
	version, err := Codec.Unmarshal(b, &decoded)
	require.NoError(err)
	require.Equal(uint16(CodecVersion), version)
	require.Equal(blk.Hash, decoded.Hash)
	require.Equal(blk.TxHashes, decoded.TxHashes)
	require.Equal(blk.Timestamp, decoded.Timestamp)
	require.Equal(blk.Hash, ComputeBlockHash(&decoded))
}

func TestNotFound(t *testing.T) {
	require := require.New(t)

	err := fmt.Errorf("lookup: %w", NewNotFound("transaction", "0x5"))
	require.True(errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(errors.As(err, &nf))
	require.Equal("transaction", nf.Kind)
	require.Equal("transaction 0x5 not found", nf.Error())
}
