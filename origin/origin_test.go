// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package origin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newUpstream(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/feeder_gateway/get_storage_at", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("contractAddress") != "0x5" || r.URL.Query().Get("key") != "7" {
			writeJSON(w, http.StatusOK, "0x0")
			return
		}
		writeJSON(w, http.StatusOK, "0x1e")
	})
	mux.HandleFunc("/feeder_gateway/get_transaction", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("transactionHash") != "0xabc" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "NOT_RECEIVED"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "ACCEPTED_ON_L2",
			"block_hash":        "0x10",
			"block_number":      4,
			"transaction_index": 0,
			"transaction": map[string]interface{}{
				"type":                 "INVOKE_FUNCTION",
				"transaction_hash":     "0xabc",
				"contract_address":     "0x5",
				"entry_point_selector": "0x2",
				"calldata":             []string{"0x1"},
				"max_fee":              "0x0",
			},
		})
	})
	mux.HandleFunc("/feeder_gateway/get_block", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("blockNumber") == "4" {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"block_hash":        "0x10",
				"parent_block_hash": "0xf",
				"block_number":      4,
				"state_root":        "0x99",
				"status":            "ACCEPTED_ON_L2",
				"gas_price":         "0x64",
				"timestamp":         1700000000,
				"transactions":      []map[string]interface{}{{"type": "INVOKE_FUNCTION", "transaction_hash": "0xabc", "contract_address": "0x5"}},
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"code":    "StarknetErrorCode.BLOCK_NOT_FOUND",
			"message": "Block number 9 was not found.",
		})
	})
	mux.HandleFunc("/feeder_gateway/get_code", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("contractAddress") == "0x5" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"abi": []string{}, "bytecode": []string{"0x1"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"bytecode": []string{}})
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestNullOrigin(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	_, err := Null{}.GetTransaction(ctx, felt.One)
	require.ErrorIs(err, chain.ErrNotFound)
	_, err = Null{}.GetBlock(ctx, 3)
	require.ErrorIs(err, chain.ErrNotFound)
	_, err = Null{}.GetBlockByHash(ctx, felt.One)
	require.ErrorIs(err, chain.ErrNotFound)
	_, err = Null{}.GetCode(ctx, felt.One)
	require.ErrorIs(err, chain.ErrNotFound)
	v, err := Null{}.GetStorageAt(ctx, felt.One, felt.One)
	require.NoError(err)
	require.Equal(felt.Zero, v)
}

func TestForkStorage(t *testing.T) {
	require := require.New(t)

	f := NewFork(newUpstream(t).URL+"/", time.Second)
	v, err := f.GetStorageAt(context.Background(), felt.FromUint64(5), felt.FromUint64(7))
	require.NoError(err)
	require.Equal(felt.FromUint64(30), v)
}

func TestForkTransaction(t *testing.T) {
	require := require.New(t)

	f := NewFork(newUpstream(t).URL, time.Second)
	tx, err := f.GetTransaction(context.Background(), felt.FromUint64(0xabc))
	require.NoError(err)
	require.Equal(chain.KindInvoke, tx.Kind)
	require.Equal(chain.StatusAcceptedOnL2, tx.Status)
	require.Equal(felt.FromUint64(5), tx.ContractAddress)
	require.Equal(uint64(4), tx.BlockNumber)
	require.Equal([]felt.Felt{felt.One}, tx.Calldata)

	_, err = f.GetTransaction(context.Background(), felt.FromUint64(0xdef))
	require.ErrorIs(err, chain.ErrNotFound)
}

func TestForkBlock(t *testing.T) {
	require := require.New(t)

	f := NewFork(newUpstream(t).URL, time.Second)
	blk, err := f.GetBlock(context.Background(), 4)
	require.NoError(err)
	require.Equal(felt.FromUint64(0x10), blk.Hash)
	require.Equal(uint64(100), blk.GasPrice)
	require.Equal([]felt.Felt{felt.FromUint64(0xabc)}, blk.TxHashes)

	_, err = f.GetBlock(context.Background(), 9)
	require.ErrorIs(err, chain.ErrNotFound)
}

func TestForkCode(t *testing.T) {
	require := require.New(t)

	f := NewFork(newUpstream(t).URL, time.Second)
	code, err := f.GetCode(context.Background(), felt.FromUint64(5))
	require.NoError(err)
	require.Equal([]felt.Felt{felt.One}, code.Bytecode)

	_, err = f.GetCode(context.Background(), felt.FromUint64(6))
	require.ErrorIs(err, chain.ErrNotFound)
}

func TestForkUnreachable(t *testing.T) {
	require := require.New(t)

	s := httptest.NewServer(http.NotFoundHandler())
	url := s.URL
	s.Close()

	f := NewFork(url, 200*time.Millisecond)
	_, err := f.GetStorageAt(context.Background(), felt.One, felt.One)
	require.Error(err)
	require.False(errors.Is(err, chain.ErrNotFound))
}
