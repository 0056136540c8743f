// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/utils/json"
	"github.com/ava-labs/avalanchego/utils/rpc"
	"github.com/go-resty/resty/v2"

	"github.com/ava-labs/l2devnet/api"
	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/postman"
	"github.com/ava-labs/l2devnet/state"
)

// Client defines devnet client operations.
type Client interface {
	// BlockNumber returns the number of the latest block
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (string, error)

	// GetBlock fetches block [number], the latest block if nil
	GetBlock(ctx context.Context, number *uint64) (*chain.BlockResponse, error)
	GetStateUpdate(ctx context.Context, number *uint64) (*chain.StateUpdate, error)
	GetTransaction(ctx context.Context, hash felt.Felt) (*chain.TransactionResponse, error)
	GetTransactionReceipt(ctx context.Context, hash felt.Felt) (*chain.TransactionReceipt, error)
	// GetTransactionTrace reads the feeder gateway, unknown hashes fail
	GetTransactionTrace(ctx context.Context, hash felt.Felt) (*chain.TransactionTrace, error)
	GetStorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error)
	GetCode(ctx context.Context, address felt.Felt) (*chain.Code, error)
	Call(ctx context.Context, address, selector felt.Felt, calldata []felt.Felt) ([]felt.Felt, error)

	// Deploy submits a DEPLOY transaction of [class]
	Deploy(ctx context.Context, class *state.Class, salt felt.Felt, calldata []felt.Felt) (*api.AddTransactionResponse, error)
	// Invoke submits an INVOKE_FUNCTION transaction
	Invoke(ctx context.Context, address, selector felt.Felt, calldata []felt.Felt, maxFee felt.Felt) (*api.AddTransactionResponse, error)

	IncreaseTime(ctx context.Context, delta int64) error
	SetTime(ctx context.Context, ts int64) error
	Mint(ctx context.Context, address, amount felt.Felt) (*devnet.MintResult, error)
	Dump(ctx context.Context, path string) error
	Load(ctx context.Context, path string) error
	Restart(ctx context.Context) error

	LoadMessagingContract(ctx context.Context, networkURL, address string) (*postman.LoadResult, error)
	Flush(ctx context.Context) (*postman.FlushResult, error)
}

// New creates a client for the devnet served at [uri].
func New(uri string) Client {
	uri = strings.TrimRight(uri, "/")
	return &client{
		req: rpc.NewEndpointRequester(uri + "/rpc"),
		rest: resty.New().
			SetBaseURL(uri).
			SetHeader("Content-Type", "application/json"),
	}
}

type client struct {
	req  rpc.EndpointRequester
	rest *resty.Client
}

func method(name string) string { return api.ServiceName + "." + name }

func blockArgs(number *uint64) *api.BlockArgs {
	args := &api.BlockArgs{}
	if number != nil {
		n := json.Uint64(*number)
		args.BlockNumber = &n
	}
	return args
}

func (cli *client) BlockNumber(ctx context.Context) (uint64, error) {
	resp := new(api.BlockNumberReply)
	if err := cli.req.SendRequest(ctx, method("blockNumber"), &struct{}{}, resp); err != nil {
		return 0, err
	}
	return uint64(resp.BlockNumber), nil
}

func (cli *client) ChainID(ctx context.Context) (string, error) {
	resp := new(api.ChainIDReply)
	if err := cli.req.SendRequest(ctx, method("chainId"), &struct{}{}, resp); err != nil {
		return "", err
	}
	return resp.ChainID, nil
}

func (cli *client) GetBlock(ctx context.Context, number *uint64) (*chain.BlockResponse, error) {
	resp := new(chain.BlockResponse)
	err := cli.req.SendRequest(ctx, method("getBlock"), blockArgs(number), resp)
	return resp, err
}

func (cli *client) GetStateUpdate(ctx context.Context, number *uint64) (*chain.StateUpdate, error) {
	resp := new(chain.StateUpdate)
	err := cli.req.SendRequest(ctx, method("getStateUpdate"), blockArgs(number), resp)
	return resp, err
}

func (cli *client) GetTransaction(ctx context.Context, hash felt.Felt) (*chain.TransactionResponse, error) {
	resp := new(chain.TransactionResponse)
	err := cli.req.SendRequest(ctx, method("getTransaction"), &api.TransactionArgs{TransactionHash: hash}, resp)
	return resp, err
}

func (cli *client) GetTransactionReceipt(ctx context.Context, hash felt.Felt) (*chain.TransactionReceipt, error) {
	resp := new(chain.TransactionReceipt)
	err := cli.req.SendRequest(ctx, method("getTransactionReceipt"), &api.TransactionArgs{TransactionHash: hash}, resp)
	return resp, err
}

func (cli *client) GetTransactionTrace(ctx context.Context, hash felt.Felt) (*chain.TransactionTrace, error) {
	resp := new(chain.TransactionTrace)
	err := cli.get(ctx, "/feeder_gateway/get_transaction_trace", map[string]string{"transactionHash": hash.Hex()}, resp)
	return resp, err
}

func (cli *client) GetStorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error) {
	resp := new(api.StorageReply)
	err := cli.req.SendRequest(ctx, method("getStorageAt"), &api.StorageArgs{
		ContractAddress: address,
		Key:             key,
	}, resp)
	return resp.Value, err
}

func (cli *client) GetCode(ctx context.Context, address felt.Felt) (*chain.Code, error) {
	resp := new(chain.Code)
	err := cli.req.SendRequest(ctx, method("getCode"), &api.CodeArgs{ContractAddress: address}, resp)
	return resp, err
}

func (cli *client) Call(ctx context.Context, address, selector felt.Felt, calldata []felt.Felt) ([]felt.Felt, error) {
	resp := new(api.CallResponse)
	err := cli.req.SendRequest(ctx, method("call"), &api.CallRequest{
		ContractAddress:    address,
		EntryPointSelector: selector,
		Calldata:           calldata,
	}, resp)
	return resp.Result, err
}

// get reads a REST endpoint with [query] into [result].
func (cli *client) get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	resp, err := cli.rest.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(result).
		SetError(&api.ErrorResponse{}).
		Get(path)
	if err != nil {
		return err
	}
	return restError(path, resp)
}

// post sends [body] to a REST endpoint and decodes the reply into [result]
// when it is not nil.
func (cli *client) post(ctx context.Context, path string, body, result interface{}) error {
	req := cli.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&api.ErrorResponse{})
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	return restError(path, resp)
}

func restError(path string, resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	if e, ok := resp.Error().(*api.ErrorResponse); ok && e.Message != "" {
		return fmt.Errorf("%s failed with %d: %s", path, resp.StatusCode(), e.Message)
	}
	return fmt.Errorf("%s failed with %d", path, resp.StatusCode())
}

func (cli *client) Deploy(ctx context.Context, class *state.Class, salt felt.Felt, calldata []felt.Felt) (*api.AddTransactionResponse, error) {
	if calldata == nil {
		calldata = []felt.Felt{}
	}
	resp := new(api.AddTransactionResponse)
	err := cli.post(ctx, "/gateway/add_transaction", &api.AddTransactionRequest{
		Type:                chain.KindDeploy,
		ContractDefinition:  class,
		ContractAddressSalt: salt,
		ConstructorCalldata: calldata,
	}, resp)
	return resp, err
}

func (cli *client) Invoke(ctx context.Context, address, selector felt.Felt, calldata []felt.Felt, maxFee felt.Felt) (*api.AddTransactionResponse, error) {
	if calldata == nil {
		calldata = []felt.Felt{}
	}
	resp := new(api.AddTransactionResponse)
	err := cli.post(ctx, "/gateway/add_transaction", &api.AddTransactionRequest{
		Type:               chain.KindInvoke,
		ContractAddress:    address,
		EntryPointSelector: selector,
		Calldata:           calldata,
		MaxFee:             maxFee,
	}, resp)
	return resp, err
}

func (cli *client) IncreaseTime(ctx context.Context, delta int64) error {
	return cli.post(ctx, "/increase_time", &api.TimeRequest{Time: &delta}, nil)
}

func (cli *client) SetTime(ctx context.Context, ts int64) error {
	return cli.post(ctx, "/set_time", &api.TimeRequest{Time: &ts}, nil)
}

func (cli *client) Mint(ctx context.Context, address, amount felt.Felt) (*devnet.MintResult, error) {
	resp := new(devnet.MintResult)
	err := cli.post(ctx, "/mint", &api.MintRequest{Address: address, Amount: amount}, resp)
	return resp, err
}

func (cli *client) Dump(ctx context.Context, path string) error {
	return cli.post(ctx, "/dump", &api.PathRequest{Path: path}, nil)
}

func (cli *client) Load(ctx context.Context, path string) error {
	return cli.post(ctx, "/load", &api.PathRequest{Path: path}, nil)
}

func (cli *client) Restart(ctx context.Context) error {
	return cli.post(ctx, "/restart", struct{}{}, nil)
}

func (cli *client) LoadMessagingContract(ctx context.Context, networkURL, address string) (*postman.LoadResult, error) {
	resp := new(postman.LoadResult)
	err := cli.post(ctx, "/postman/load_l1_messaging_contract", &api.LoadMessagingContractRequest{
		NetworkURL: networkURL,
		Address:    address,
	}, resp)
	return resp, err
}

func (cli *client) Flush(ctx context.Context) (*postman.FlushResult, error) {
	resp := new(postman.FlushResult)
	err := cli.post(ctx, "/postman/flush", struct{}{}, resp)
	return resp, err
}
