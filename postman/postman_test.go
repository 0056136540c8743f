// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

var (
	l1Contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	l1User     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	l2Contract = felt.FromUint64(0xabc)
)

type fakeLedger struct {
	lock     sync.Mutex
	toL2     []*MessageToL2
	sent     []state.MessageToL1
	consumed int
	down     bool
	closed   bool
}

func (l *fakeLedger) MessagesToL2(context.Context) ([]*MessageToL2, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.down {
		return nil, errors.New("connection refused")
	}
	return append([]*MessageToL2(nil), l.toL2...), nil
}

func (l *fakeLedger) SendMessageFromL2(_ context.Context, msg state.MessageToL1) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.down {
		return errors.New("connection refused")
	}
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLedger) ConsumeMessageToL2(context.Context, *MessageToL2) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.consumed++
	return nil
}

func (l *fakeLedger) Close() { l.closed = true }

type fakeL2 struct {
	toL1    []state.MessageToL1
	handled []*MessageToL2
	fail    error
}

func (f *fakeL2) MessagesToL1(from uint64) []state.MessageToL1 {
	if from >= uint64(len(f.toL1)) {
		return nil
	}
	return f.toL1[from:]
}

func (f *fakeL2) HandleMessageToL2(_ context.Context, msg *MessageToL2) (felt.Felt, error) {
	if f.fail != nil {
		return felt.Zero, f.fail
	}
	f.handled = append(f.handled, msg)
	return felt.FromUint64(uint64(len(f.handled))), nil
}

func newPostman(l2 L2, ledger *fakeLedger) *Postman {
	return New(l2, func(context.Context, string, common.Address) (Ledger, error) {
		return ledger, nil
	})
}

func TestLoadValidation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	p := newPostman(&fakeL2{}, &fakeLedger{})

	_, err := p.LoadMessagingContract(ctx, "http://localhost:8545", l1Contract, "goerli")
	require.ErrorIs(err, ErrInvalidRequest)
	require.Contains(err.Error(), "L1 interaction is only usable with a local running local testnet instance.")

	_, err = p.LoadMessagingContract(ctx, "http://localhost:8545", "", "")
	require.ErrorIs(err, ErrInvalidRequest)

	res, err := p.LoadMessagingContract(ctx, "http://localhost:8545", "0x5fbdb2315678afecb367f032d93f642f64180aa3", "local")
	require.NoError(err)
	require.Equal(l1Contract, res.Address)
	require.Equal("http://localhost:8545", res.L1Provider)
}

func TestFlushWithoutContract(t *testing.T) {
	require := require.New(t)
	p := newPostman(&fakeL2{}, &fakeLedger{})

	res, err := p.Flush(context.Background())
	require.NoError(err)
	require.Empty(res.ConsumedMessages.FromL1)
	require.Empty(res.ConsumedMessages.FromL2)
}

func TestFlushDeliversOnce(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	l2 := &fakeL2{toL1: []state.MessageToL1{{
		FromAddress: l2Contract,
		ToAddress:   felt.FromBytes(l1User.Bytes()),
		Payload:     []felt.Felt{felt.Zero, felt.FromUint64(1), felt.FromUint64(1000)},
	}}}
	ledger := &fakeLedger{}
	p := newPostman(l2, ledger)
	_, err := p.LoadMessagingContract(ctx, "http://localhost:8545", l1Contract, "")
	require.NoError(err)

	res, err := p.Flush(ctx)
	require.NoError(err)
	require.Len(res.ConsumedMessages.FromL1, 0)
	require.Len(res.ConsumedMessages.FromL2, 1)
	require.Equal(l2Contract.FixedHex(), res.ConsumedMessages.FromL2[0].FromAddress)
	require.Equal(l1User.Hex(), res.ConsumedMessages.FromL2[0].ToAddress)
	require.Len(ledger.sent, 1)

	ledger.toL2 = append(ledger.toL2, &MessageToL2{
		FromAddress: l1User,
		ToAddress:   l2Contract,
		Selector:    felt.Selector("deposit"),
		Payload:     []felt.Felt{felt.FromUint64(1), felt.FromUint64(600)},
	})
	res, err = p.Flush(ctx)
	require.NoError(err)
	require.Len(res.ConsumedMessages.FromL1, 1)
	require.Len(res.ConsumedMessages.FromL2, 0)
	require.Equal(l1User.Hex(), res.ConsumedMessages.FromL1[0].FromAddress)
	require.Equal(felt.FromUint64(1), res.ConsumedMessages.FromL1[0].TransactionHash)

	res, err = p.Flush(ctx)
	require.NoError(err)
	require.Empty(res.ConsumedMessages.FromL1)
	require.Empty(res.ConsumedMessages.FromL2)
	require.Len(l2.handled, 1)
	require.Equal(1, ledger.consumed)
}

func TestFlushConsumesOnceWhenHandlerFails(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	l2 := &fakeL2{fail: errors.New("execution failed")}
	ledger := &fakeLedger{toL2: []*MessageToL2{{
		FromAddress: l1User,
		ToAddress:   l2Contract,
		Selector:    felt.Selector("deposit"),
		Payload:     []felt.Felt{felt.FromUint64(1), felt.FromUint64(600)},
	}}}
	p := newPostman(l2, ledger)
	_, err := p.LoadMessagingContract(ctx, "http://localhost:8545", l1Contract, "")
	require.NoError(err)

	_, err = p.Flush(ctx)
	require.EqualError(err, "execution failed")
	require.Equal(1, ledger.consumed)

	l2.fail = nil
	res, err := p.Flush(ctx)
	require.NoError(err)
	require.Empty(res.ConsumedMessages.FromL1)
	require.Empty(l2.handled)
	require.Equal(1, ledger.consumed)
}

func TestFlushRetriesAfterOutage(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	l2 := &fakeL2{toL1: []state.MessageToL1{{FromAddress: l2Contract}}}
	ledger := &fakeLedger{down: true}
	p := newPostman(l2, ledger)
	_, err := p.LoadMessagingContract(ctx, "http://localhost:8545", l1Contract, "")
	require.NoError(err)

	_, err = p.Flush(ctx)
	require.ErrorIs(err, ErrBridgeUnavailable)
	require.Empty(ledger.sent)

	ledger.down = false
	res, err := p.Flush(ctx)
	require.NoError(err)
	require.Len(res.ConsumedMessages.FromL2, 1)
	require.Len(ledger.sent, 1)
}

func TestExportRestore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	l2 := &fakeL2{toL1: []state.MessageToL1{{FromAddress: l2Contract}}}
	ledger := &fakeLedger{}
	p := newPostman(l2, ledger)
	_, err := p.LoadMessagingContract(ctx, "http://localhost:8545", l1Contract, "")
	require.NoError(err)
	_, err = p.Flush(ctx)
	require.NoError(err)

	img := p.Export()
	require.True(img.Loaded)
	require.Equal(uint64(1), img.L2Cursor)

	restored := newPostman(l2, ledger)
	restored.Restore(img)
	res, err := restored.Flush(ctx)
	require.NoError(err)
	require.Equal("http://localhost:8545", res.L1Provider)
	require.Empty(res.ConsumedMessages.FromL2)

	restored.Restore(nil)
	res, err = restored.Flush(ctx)
	require.NoError(err)
	require.Empty(res.L1Provider)
	require.True(ledger.closed)
}

func TestDecodeMessageToL2(t *testing.T) {
	require := require.New(t)

	event := messagingABI.Events[logMessageToL2]
	data, err := event.Inputs.NonIndexed().Pack([]*big.Int{big.NewInt(1), big.NewInt(600)})
	require.NoError(err)
	lg := types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(l1User.Bytes()),
			common.BigToHash(l2Contract.Big()),
			common.BigToHash(felt.Selector("deposit").Big()),
		},
		Data: data,
	}

	contract := bind.NewBoundContract(common.HexToAddress(l1Contract), messagingABI, nil, nil, nil)
	msg, err := decodeMessageToL2(contract, lg)
	require.NoError(err)
	require.Equal(l1User, msg.FromAddress)
	require.Equal(l2Contract, msg.ToAddress)
	require.Equal(felt.Selector("deposit"), msg.Selector)
	require.Equal([]felt.Felt{felt.FromUint64(1), felt.FromUint64(600)}, msg.Payload)
}

func TestPackMessages(t *testing.T) {
	require := require.New(t)

	data, err := messagingABI.Pack(mockSendMessageFromL2, l2Contract.Big(), big.NewInt(1), bigs([]felt.Felt{felt.One}))
	require.NoError(err)
	require.Equal(messagingABI.Methods[mockSendMessageFromL2].ID, data[:4])
}
