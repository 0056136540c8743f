// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package origin

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
)

const defaultTimeout = 30 * time.Second

// gatewayError is the error body of a feeder gateway.
type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Fork reads from the feeder gateway of an upstream network.
type Fork struct {
	url    string
	client *resty.Client
	log    log.Logger
}

func NewFork(url string, timeout time.Duration) *Fork {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	url = strings.TrimRight(url, "/")
	return &Fork{
		url: url,
		client: resty.New().
			SetBaseURL(url).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		log: log.New("module", "origin", "fork", url),
	}
}

func (f *Fork) URL() string { return f.url }

func (f *Fork) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		SetError(&gatewayError{}).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to reach origin %s: %w", f.url, err)
	}
	if !resp.IsError() {
		return nil
	}
	gerr, _ := resp.Error().(*gatewayError)
	if resp.StatusCode() == http.StatusNotFound || (gerr != nil && isNotFound(gerr)) {
		return chain.ErrNotFound
	}
	if gerr != nil && gerr.Message != "" {
		return fmt.Errorf("origin %s returned %d: %s", path, resp.StatusCode(), gerr.Message)
	}
	return fmt.Errorf("origin %s returned %d", path, resp.StatusCode())
}

func isNotFound(e *gatewayError) bool {
	return strings.Contains(strings.ToUpper(e.Code), "NOT_FOUND") ||
		strings.Contains(strings.ToLower(e.Message), "not found")
}

func (f *Fork) GetTransaction(ctx context.Context, hash felt.Felt) (*chain.Transaction, error) {
	resp := new(chain.TransactionResponse)
	err := f.get(ctx, "/feeder_gateway/get_transaction", map[string]string{"transactionHash": hash.Hex()}, resp)
	if err == chain.ErrNotFound || (err == nil && resp.Status == chain.StatusNotReceived) {
		return nil, chain.NewNotFound("transaction", hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	return resp.Record()
}

func (f *Fork) GetBlock(ctx context.Context, number uint64) (*chain.Block, error) {
	resp := new(chain.BlockResponse)
	err := f.get(ctx, "/feeder_gateway/get_block", map[string]string{"blockNumber": strconv.FormatUint(number, 10)}, resp)
	if err == chain.ErrNotFound {
		return nil, chain.NewNotFound("block number", strconv.FormatUint(number, 10))
	}
	if err != nil {
		return nil, err
	}
	return resp.Record(), nil
}

func (f *Fork) GetBlockByHash(ctx context.Context, hash felt.Felt) (*chain.Block, error) {
	resp := new(chain.BlockResponse)
	err := f.get(ctx, "/feeder_gateway/get_block", map[string]string{"blockHash": hash.Hex()}, resp)
	if err == chain.ErrNotFound {
		return nil, chain.NewNotFound("block", hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	return resp.Record(), nil
}

func (f *Fork) GetCode(ctx context.Context, address felt.Felt) (*chain.Code, error) {
	code := new(chain.Code)
	err := f.get(ctx, "/feeder_gateway/get_code", map[string]string{"contractAddress": address.Hex()}, code)
	// upstream answers unknown addresses with empty code
	if err == chain.ErrNotFound || (err == nil && len(code.Bytecode) == 0 && len(code.ABI) == 0) {
		return nil, chain.NewNotFound("contract", address.FixedHex())
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

func (f *Fork) GetStorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error) {
	var value felt.Felt
	err := f.get(ctx, "/feeder_gateway/get_storage_at", map[string]string{
		"contractAddress": address.Hex(),
		"key":             key.Decimal(),
	}, &value)
	if err == chain.ErrNotFound {
		return felt.Zero, nil
	}
	if err != nil {
		f.log.Debug("storage read failed", "address", address, "key", key, "err", err)
		return felt.Zero, err
	}
	return value, nil
}
