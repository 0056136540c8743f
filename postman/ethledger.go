// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

// MessagingABI is the subset of the mock messaging contract the postman uses.
const MessagingABI = `[
	{"type":"event","name":"LogMessageToL2","anonymous":false,"inputs":[
		{"name":"fromAddress","type":"address","indexed":true},
		{"name":"toAddress","type":"uint256","indexed":true},
		{"name":"selector","type":"uint256","indexed":true},
		{"name":"payload","type":"uint256[]","indexed":false}]},
	{"type":"function","name":"mockSendMessageFromL2","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"fromAddress","type":"uint256"},
		{"name":"toAddress","type":"uint256"},
		{"name":"payload","type":"uint256[]"}]},
	{"type":"function","name":"mockConsumeMessageToL2","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"fromAddress","type":"uint256"},
		{"name":"toAddress","type":"uint256"},
		{"name":"selector","type":"uint256"},
		{"name":"payload","type":"uint256[]"}]}
]`

const (
	logMessageToL2         = "LogMessageToL2"
	mockSendMessageFromL2  = "mockSendMessageFromL2"
	mockConsumeMessageToL2 = "mockConsumeMessageToL2"

	receiptPollInterval = 100 * time.Millisecond
)

var (
	messagingABI abi.ABI

	errNoAccounts = errors.New("L1 node has no unlocked account")
	errReverted   = errors.New("L1 transaction reverted")
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(MessagingABI))
	if err != nil {
		panic(err)
	}
	messagingABI = parsed
}

// logMessage mirrors the LogMessageToL2 event fields.
type logMessage struct {
	FromAddress common.Address
	ToAddress   *big.Int
	Selector    *big.Int
	Payload     []*big.Int
}

// ethLedger talks to a mock messaging contract through an Ethereum JSON-RPC
// node that holds an unlocked account.
type ethLedger struct {
	rpc      *rpc.Client
	client   *ethclient.Client
	address  common.Address
	contract *bind.BoundContract
}

// DialEthereum is the default Dialer.
func DialEthereum(ctx context.Context, networkURL string, address common.Address) (Ledger, error) {
	rpcClient, err := rpc.DialContext(ctx, networkURL)
	if err != nil {
		return nil, err
	}
	client := ethclient.NewClient(rpcClient)
	return &ethLedger{
		rpc:      rpcClient,
		client:   client,
		address:  address,
		contract: bind.NewBoundContract(address, messagingABI, client, client, client),
	}, nil
}

func (l *ethLedger) MessagesToL2(ctx context.Context) ([]*MessageToL2, error) {
	logs, err := l.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{l.address},
		Topics:    [][]common.Hash{{messagingABI.Events[logMessageToL2].ID}},
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]*MessageToL2, 0, len(logs))
	for _, lg := range logs {
		msg, err := decodeMessageToL2(l.contract, lg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func decodeMessageToL2(contract *bind.BoundContract, lg types.Log) (*MessageToL2, error) {
	ev := new(logMessage)
	if err := contract.UnpackLog(ev, logMessageToL2, lg); err != nil {
		return nil, fmt.Errorf("couldn't decode %s in tx %s: %w", logMessageToL2, lg.TxHash, err)
	}
	msg := &MessageToL2{
		FromAddress: ev.FromAddress,
		Payload:     make([]felt.Felt, len(ev.Payload)),
	}
	var err error
	if msg.ToAddress, err = felt.FromBig(ev.ToAddress); err != nil {
		return nil, err
	}
	if msg.Selector, err = felt.FromBig(ev.Selector); err != nil {
		return nil, err
	}
	for i, p := range ev.Payload {
		if msg.Payload[i], err = felt.FromBig(p); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (l *ethLedger) SendMessageFromL2(ctx context.Context, msg state.MessageToL1) error {
	data, err := messagingABI.Pack(mockSendMessageFromL2,
		msg.FromAddress.Big(),
		msg.ToAddress.Big(),
		bigs(msg.Payload),
	)
	if err != nil {
		return err
	}
	return l.send(ctx, data)
}

func (l *ethLedger) ConsumeMessageToL2(ctx context.Context, msg *MessageToL2) error {
	data, err := messagingABI.Pack(mockConsumeMessageToL2,
		new(big.Int).SetBytes(msg.FromAddress.Bytes()),
		msg.ToAddress.Big(),
		msg.Selector.Big(),
		bigs(msg.Payload),
	)
	if err != nil {
		return err
	}
	return l.send(ctx, data)
}

// send submits [data] to the messaging contract from the node's first account
// and waits for it to be mined.
func (l *ethLedger) send(ctx context.Context, data []byte) error {
	var accounts []common.Address
	if err := l.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return err
	}
	if len(accounts) == 0 {
		return errNoAccounts
	}

	tx := map[string]string{
		"from": accounts[0].String(),
		"to":   l.address.String(),
		"data": hexutil.Encode(data),
	}
	var hash common.Hash
	if err := l.rpc.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return err
	}

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", errReverted, hash)
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *ethLedger) Close() {
	l.client.Close()
}

func bigs(fs []felt.Felt) []*big.Int {
	out := make([]*big.Int, len(fs))
	for i, f := range fs {
		out[i] = f.Big()
	}
	return out
}
