// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

const (
	receivedCode = "TRANSACTION_RECEIVED"
	feeUnit      = "wei"
)

var (
	errMissingCalldata = errors.New("Invoke transaction is missing calldata.")
	errMissingTime     = errors.New("Time value must be provided.")
)

// AddTransactionRequest is the body of add_transaction. Which fields are read
// depends on Type.
type AddTransactionRequest struct {
	Type chain.Kind `json:"type"`

	// DEPLOY
	ContractDefinition  *state.Class `json:"contract_definition,omitempty"`
	ContractAddressSalt felt.Felt    `json:"contract_address_salt"`
	ConstructorCalldata []felt.Felt  `json:"constructor_calldata,omitempty"`

	// INVOKE_FUNCTION
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
	MaxFee             felt.Felt   `json:"max_fee"`
	Signature          []felt.Felt `json:"signature,omitempty"`
}

type AddTransactionResponse struct {
	Code            string      `json:"code"`
	TransactionHash felt.Felt   `json:"transaction_hash"`
	Address         felt.Felt   `json:"address"`
	Result          []felt.Felt `json:"result,omitempty"`
}

// CallRequest is the body of call_contract and estimate_fee.
type CallRequest struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
	Signature          []felt.Felt `json:"signature,omitempty"`
}

func (r *CallRequest) invokeRequest() *devnet.InvokeRequest {
	return &devnet.InvokeRequest{
		ContractAddress: r.ContractAddress,
		Selector:        r.EntryPointSelector,
		Calldata:        r.Calldata,
	}
}

type CallResponse struct {
	Result []felt.Felt `json:"result"`
}

type FeeResponse struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
}

type PathRequest struct {
	Path string `json:"path"`
}

type TimeRequest struct {
	Time *int64 `json:"time"`
}

type IncreaseTimeResponse struct {
	TimestampIncreasedBy int64 `json:"timestamp_increased_by"`
}

type SetTimeResponse struct {
	NextBlockTimestamp int64 `json:"next_block_timestamp"`
}

type MintRequest struct {
	Address felt.Felt `json:"address"`
	Amount  felt.Felt `json:"amount"`
}

type LoadMessagingContractRequest struct {
	NetworkURL string `json:"networkUrl"`
	Address    string `json:"address"`
	NetworkID  string `json:"networkId"`
}

func (s *Server) addTransaction(w http.ResponseWriter, r *http.Request) {
	var req AddTransactionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	switch req.Type {
	case chain.KindDeploy:
		res, err := s.devnet.Deploy(r.Context(), &devnet.DeployRequest{
			Class:               req.ContractDefinition,
			ConstructorCalldata: req.ConstructorCalldata,
			Salt:                req.ContractAddressSalt,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, &AddTransactionResponse{
			Code:            receivedCode,
			TransactionHash: res.TxHash,
			Address:         res.Address,
		})
	case chain.KindInvoke:
		if req.Calldata == nil {
			s.writeError(w, r, invalid(errMissingCalldata))
			return
		}
		res, err := s.devnet.Invoke(r.Context(), &devnet.InvokeRequest{
			ContractAddress: req.ContractAddress,
			Selector:        req.EntryPointSelector,
			Calldata:        req.Calldata,
			MaxFee:          req.MaxFee,
			Signature:       req.Signature,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, &AddTransactionResponse{
			Code:            receivedCode,
			TransactionHash: res.TxHash,
			Address:         res.Address,
			Result:          res.Result,
		})
	default:
		s.writeError(w, r, invalid(fmt.Errorf("invalid tx type: %s", req.Type)))
	}
}

func (s *Server) callContract(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.devnet.Call(r.Context(), req.invokeRequest())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		result = []felt.Felt{}
	}
	s.writeJSON(w, &CallResponse{Result: result})
}

func (s *Server) estimateFee(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fee, err := s.devnet.EstimateFee(r.Context(), req.invokeRequest())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, &FeeResponse{Amount: fee, Unit: feeUnit})
}

// blockFromQuery resolves the blockNumber or blockHash query parameter, the
// latest block when neither is given.
func (s *Server) blockFromQuery(r *http.Request) (*chain.Block, error) {
	q := r.URL.Query()
	number, hash := q.Get("blockNumber"), q.Get("blockHash")
	switch {
	case number != "" && hash != "":
		return nil, invalid(errors.New("Ambiguous criteria: only one of (block number, block hash) can be provided."))
	case hash != "":
		h, err := felt.Parse(hash)
		if err != nil {
			return nil, invalid(fmt.Errorf("invalid block hash: %w", err))
		}
		return s.devnet.BlockByHash(r.Context(), h)
	case number != "" && number != "latest" && number != "pending":
		n, err := strconv.ParseUint(number, 10, 64)
		if err != nil {
			return nil, invalid(fmt.Errorf("invalid block number: %w", err))
		}
		return s.devnet.Block(r.Context(), n)
	default:
		return s.devnet.LatestBlock()
	}
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	blk, err := s.blockFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.devnet.BlockResponse(r.Context(), blk)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) getStateUpdate(w http.ResponseWriter, r *http.Request) {
	blk, err := s.blockFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, blk.StateUpdateResponse())
}

func feltParam(r *http.Request, name string) (felt.Felt, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return felt.Zero, invalid(fmt.Errorf("missing %s", name))
	}
	f, err := felt.Parse(v)
	if err != nil {
		return felt.Zero, invalid(fmt.Errorf("invalid %s: %w", name, err))
	}
	return f, nil
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := feltParam(r, "transactionHash")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.devnet.Transaction(r.Context(), hash)
	switch {
	case errors.Is(err, chain.ErrNotFound):
		s.writeJSON(w, &chain.TransactionResponse{Status: chain.StatusNotReceived})
	case err != nil:
		s.writeError(w, r, err)
	default:
		s.writeJSON(w, tx.Response())
	}
}

func (s *Server) getTransactionStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := feltParam(r, "transactionHash")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := s.devnet.TransactionStatus(r.Context(), hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, status)
}

func (s *Server) getTransactionReceipt(w http.ResponseWriter, r *http.Request) {
	hash, err := feltParam(r, "transactionHash")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.devnet.Transaction(r.Context(), hash)
	switch {
	case errors.Is(err, chain.ErrNotFound):
		s.writeJSON(w, &chain.TransactionReceipt{
			Status:          chain.StatusNotReceived,
			TransactionHash: hash,
			L2ToL1Messages:  []state.MessageToL1{},
			Events:          []chain.Event{},
		})
	case err != nil:
		s.writeError(w, r, err)
	default:
		receipt := tx.ReceiptResponse()
		s.writeJSON(w, &receipt)
	}
}

// getTransactionTrace fails for unknown and rejected transactions.
func (s *Server) getTransactionTrace(w http.ResponseWriter, r *http.Request) {
	hash, err := feltParam(r, "transactionHash")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.devnet.Transaction(r.Context(), hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trace, err := tx.Trace()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, trace)
}

func (s *Server) getStorageAt(w http.ResponseWriter, r *http.Request) {
	address, err := feltParam(r, "contractAddress")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, err := feltParam(r, "key")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := s.devnet.StorageAt(r.Context(), address, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, value)
}

func (s *Server) getCode(w http.ResponseWriter, r *http.Request) {
	address, err := feltParam(r, "contractAddress")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	code, err := s.devnet.Code(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, code)
}

func (s *Server) dump(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.devnet.Dump(r.Context(), req.Path); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.devnet.Load(r.Context(), req.Path); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	if err := s.devnet.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) increaseTime(w http.ResponseWriter, r *http.Request) {
	var req TimeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Time == nil {
		s.writeError(w, r, invalid(errMissingTime))
		return
	}
	if err := s.devnet.IncreaseTime(r.Context(), *req.Time); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, &IncreaseTimeResponse{TimestampIncreasedBy: *req.Time})
}

func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	var req TimeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Time == nil {
		s.writeError(w, r, invalid(errMissingTime))
		return
	}
	if err := s.devnet.SetTime(r.Context(), *req.Time); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, &SetTimeResponse{NextBlockTimestamp: *req.Time})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.devnet.Mint(r.Context(), req.Address, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) loadMessagingContract(w http.ResponseWriter, r *http.Request) {
	var req LoadMessagingContractRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.devnet.Postman().LoadMessagingContract(r.Context(), req.NetworkURL, req.Address, req.NetworkID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) flush(w http.ResponseWriter, r *http.Request) {
	res, err := s.devnet.Postman().Flush(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, res)
}
