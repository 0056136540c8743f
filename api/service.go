// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"

	"github.com/ava-labs/avalanchego/utils/json"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/felt"
)

// ProtocolVersion is the RPC protocol version the service reports.
const ProtocolVersion = "0.15.0"

var (
	errAmbiguousBlock    = errors.New("only one of blockNumber and blockHash can be provided")
	errInvalidTxnIndex   = errors.New("invalid transaction index in a block")
	errMissingBlockHash  = errors.New("blockHash must be provided")
	errMissingBlockIndex = errors.New("index must be provided")
)

// Service is the JSON-RPC service of a devnet
type Service struct{ devnet *devnet.Devnet }

type BlockNumberReply struct {
	BlockNumber json.Uint64 `json:"blockNumber"`
}

// BlockNumber returns the number of the latest block.
func (s *Service) BlockNumber(_ *http.Request, _ *struct{}, reply *BlockNumberReply) error {
	blk, err := s.devnet.LatestBlock()
	if err != nil {
		return err
	}
	reply.BlockNumber = json.Uint64(blk.Number)
	return nil
}

type ChainIDReply struct {
	ChainID string `json:"chainId"`
}

// ChainId returns the chain id as a hex string.
func (s *Service) ChainId(_ *http.Request, _ *struct{}, reply *ChainIDReply) error {
	reply.ChainID = s.devnet.ChainID().Hex()
	return nil
}

type ProtocolVersionReply struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// ProtocolVersion returns the hex encoding of the protocol version string.
func (s *Service) ProtocolVersion(_ *http.Request, _ *struct{}, reply *ProtocolVersionReply) error {
	reply.ProtocolVersion = felt.FromShortString(ProtocolVersion).Hex()
	return nil
}

// BlockArgs selects a block by number or hash, the latest one if neither is
// set.
type BlockArgs struct {
	BlockNumber *json.Uint64 `json:"blockNumber,omitempty"`
	BlockHash   *felt.Felt   `json:"blockHash,omitempty"`
}

func (s *Service) block(r *http.Request, args *BlockArgs) (*chain.Block, error) {
	switch {
	case args.BlockNumber != nil && args.BlockHash != nil:
		return nil, errAmbiguousBlock
	case args.BlockHash != nil:
		return s.devnet.BlockByHash(r.Context(), *args.BlockHash)
	case args.BlockNumber != nil:
		return s.devnet.Block(r.Context(), uint64(*args.BlockNumber))
	default:
		return s.devnet.LatestBlock()
	}
}

func (s *Service) GetBlock(r *http.Request, args *BlockArgs, reply *chain.BlockResponse) error {
	blk, err := s.block(r, args)
	if err != nil {
		return err
	}
	res, err := s.devnet.BlockResponse(r.Context(), blk)
	if err != nil {
		return err
	}
	*reply = *res
	return nil
}

func (s *Service) GetStateUpdate(r *http.Request, args *BlockArgs, reply *chain.StateUpdate) error {
	blk, err := s.block(r, args)
	if err != nil {
		return err
	}
	*reply = *blk.StateUpdateResponse()
	return nil
}

type TransactionCountReply struct {
	TransactionCount json.Uint64 `json:"transactionCount"`
}

func (s *Service) GetBlockTransactionCount(r *http.Request, args *BlockArgs, reply *TransactionCountReply) error {
	blk, err := s.block(r, args)
	if err != nil {
		return err
	}
	reply.TransactionCount = json.Uint64(len(blk.TxHashes))
	return nil
}

// BlockIndexArgs selects the transaction at Index of a block.
type BlockIndexArgs struct {
	BlockArgs
	Index *json.Uint64 `json:"index"`
}

func (s *Service) GetTransactionByBlockHashAndIndex(r *http.Request, args *BlockIndexArgs, reply *chain.TransactionResponse) error {
	if args.BlockHash == nil {
		return errMissingBlockHash
	}
	return s.transactionByIndex(r, args, reply)
}

// GetTransactionByBlockNumberAndIndex reads the latest block when no number
// is given.
func (s *Service) GetTransactionByBlockNumberAndIndex(r *http.Request, args *BlockIndexArgs, reply *chain.TransactionResponse) error {
	if args.BlockHash != nil {
		return errAmbiguousBlock
	}
	return s.transactionByIndex(r, args, reply)
}

func (s *Service) transactionByIndex(r *http.Request, args *BlockIndexArgs, reply *chain.TransactionResponse) error {
	if args.Index == nil {
		return errMissingBlockIndex
	}
	blk, err := s.block(r, &args.BlockArgs)
	if err != nil {
		return err
	}
	if uint64(*args.Index) >= uint64(len(blk.TxHashes)) {
		return errInvalidTxnIndex
	}
	tx, err := s.devnet.Transaction(r.Context(), blk.TxHashes[*args.Index])
	if err != nil {
		return err
	}
	*reply = *tx.Response()
	return nil
}

type TransactionArgs struct {
	TransactionHash felt.Felt `json:"transactionHash"`
}

// GetTransaction reports unknown hashes as NOT_RECEIVED.
func (s *Service) GetTransaction(r *http.Request, args *TransactionArgs, reply *chain.TransactionResponse) error {
	tx, err := s.devnet.Transaction(r.Context(), args.TransactionHash)
	switch {
	case errors.Is(err, chain.ErrNotFound):
		reply.Status = chain.StatusNotReceived
		return nil
	case err != nil:
		return err
	}
	*reply = *tx.Response()
	return nil
}

func (s *Service) GetTransactionReceipt(r *http.Request, args *TransactionArgs, reply *chain.TransactionReceipt) error {
	tx, err := s.devnet.Transaction(r.Context(), args.TransactionHash)
	switch {
	case errors.Is(err, chain.ErrNotFound):
		reply.Status = chain.StatusNotReceived
		reply.TransactionHash = args.TransactionHash
		return nil
	case err != nil:
		return err
	}
	*reply = tx.ReceiptResponse()
	return nil
}

type StorageArgs struct {
	ContractAddress felt.Felt `json:"contractAddress"`
	Key             felt.Felt `json:"key"`
}

type StorageReply struct {
	Value felt.Felt `json:"value"`
}

func (s *Service) GetStorageAt(r *http.Request, args *StorageArgs, reply *StorageReply) error {
	value, err := s.devnet.StorageAt(r.Context(), args.ContractAddress, args.Key)
	if err != nil {
		return err
	}
	reply.Value = value
	return nil
}

type CodeArgs struct {
	ContractAddress felt.Felt `json:"contractAddress"`
}

func (s *Service) GetCode(r *http.Request, args *CodeArgs, reply *chain.Code) error {
	code, err := s.devnet.Code(r.Context(), args.ContractAddress)
	if err != nil {
		return err
	}
	*reply = *code
	return nil
}

// Call runs [args] against the latest state without producing a block.
func (s *Service) Call(r *http.Request, args *CallRequest, reply *CallResponse) error {
	result, err := s.devnet.Call(r.Context(), args.invokeRequest())
	if err != nil {
		return err
	}
	if result == nil {
		result = []felt.Felt{}
	}
	reply.Result = result
	return nil
}
