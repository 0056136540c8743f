// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package postman relays messages between the devnet and an L1 ledger.
package postman

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

const localNetworkID = "local"

var (
	// ErrBridgeUnavailable means the L1 ledger could not be reached. Nothing
	// was consumed past the failure and the flush can be retried.
	ErrBridgeUnavailable = errors.New("L1 ledger unavailable")

	// ErrInvalidRequest marks caller errors.
	ErrInvalidRequest = errors.New("invalid postman request")

	errNetworkID       = fmt.Errorf("%w: L1 interaction is only usable with a local running local testnet instance.", ErrInvalidRequest)
	errAddressRequired = fmt.Errorf("%w: address is required", ErrInvalidRequest)
	errInvalidAddress  = fmt.Errorf("%w: invalid address", ErrInvalidRequest)
)

// MessageToL2 is a message sent from L1, as observed in the ledger's log.
type MessageToL2 struct {
	FromAddress common.Address
	ToAddress   felt.Felt
	Selector    felt.Felt
	Payload     []felt.Felt
}

// L2 is the devnet side of the bridge.
type L2 interface {
	// MessagesToL1 returns the L2->L1 log from index [from].
	MessagesToL1(from uint64) []state.MessageToL1
	// HandleMessageToL2 executes the L1 handler targeted by [msg] and returns
	// the hash of the resulting transaction.
	HandleMessageToL2(ctx context.Context, msg *MessageToL2) (felt.Felt, error)
}

// Ledger is the L1 side of the bridge.
type Ledger interface {
	// MessagesToL2 returns every message sent to L2, oldest first.
	MessagesToL2(ctx context.Context) ([]*MessageToL2, error)
	// SendMessageFromL2 makes [msg] consumable on L1.
	SendMessageFromL2(ctx context.Context, msg state.MessageToL1) error
	// ConsumeMessageToL2 marks [msg] as delivered on L1.
	ConsumeMessageToL2(ctx context.Context, msg *MessageToL2) error
	Close()
}

// Dialer connects to the messaging contract at [address] on [networkURL].
type Dialer func(ctx context.Context, networkURL string, address common.Address) (Ledger, error)

// Postman owns the cursors into both message logs. Cursors only move past
// messages whose hand-off completed.
type Postman struct {
	// flushLock keeps flushes mutually exclusive
	flushLock sync.Mutex

	// lock guards the fields below and is never held across ledger I/O
	lock       sync.Mutex
	ledger     Ledger
	networkURL string
	contract   common.Address
	loaded     bool
	l1Cursor   uint64
	l2Cursor   uint64

	l2   L2
	dial Dialer
	log  log.Logger
}

func New(l2 L2, dial Dialer) *Postman {
	if dial == nil {
		dial = DialEthereum
	}
	return &Postman{
		l2:   l2,
		dial: dial,
		log:  log.New("module", "postman"),
	}
}

type LoadResult struct {
	Address    string `json:"address"`
	L1Provider string `json:"l1_provider"`
}

// LoadMessagingContract binds the postman to a messaging contract on L1.
func (p *Postman) LoadMessagingContract(ctx context.Context, networkURL, address, networkID string) (*LoadResult, error) {
	if networkID != "" && networkID != localNetworkID {
		return nil, errNetworkID
	}
	if address == "" {
		return nil, errAddressRequired
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w %q", errInvalidAddress, address)
	}
	contract := common.HexToAddress(address)

	ledger, err := p.dial(ctx, networkURL, contract)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}

	p.lock.Lock()
	old := p.ledger
	p.ledger = ledger
	p.networkURL = networkURL
	p.contract = contract
	p.loaded = true
	// a new contract has its own L1 log
	p.l1Cursor = 0
	p.lock.Unlock()

	if old != nil {
		old.Close()
	}
	p.log.Info("loaded messaging contract", "address", contract, "l1Provider", networkURL)
	return &LoadResult{Address: contract.Hex(), L1Provider: networkURL}, nil
}

type FromL1 struct {
	FromAddress     string      `json:"from_address"`
	ToAddress       string      `json:"to_address"`
	Selector        felt.Felt   `json:"selector"`
	Payload         []felt.Felt `json:"payload"`
	TransactionHash felt.Felt   `json:"transaction_hash"`
}

type FromL2 struct {
	FromAddress string      `json:"from_address"`
	ToAddress   string      `json:"to_address"`
	Payload     []felt.Felt `json:"payload"`
}

type ConsumedMessages struct {
	FromL1 []FromL1 `json:"from_l1"`
	FromL2 []FromL2 `json:"from_l2"`
}

type FlushResult struct {
	L1Provider       string           `json:"l1_provider"`
	ConsumedMessages ConsumedMessages `json:"consumed_messages"`
}

// Flush hands every new L1->L2 message to the devnet and every new L2->L1
// message to the ledger. Messages handed off before a failure stay consumed.
func (p *Postman) Flush(ctx context.Context) (*FlushResult, error) {
	p.flushLock.Lock()
	defer p.flushLock.Unlock()

	res := &FlushResult{
		ConsumedMessages: ConsumedMessages{
			FromL1: []FromL1{},
			FromL2: []FromL2{},
		},
	}
	ledger, err := p.currentLedger(ctx)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return res, nil
	}

	p.lock.Lock()
	res.L1Provider = p.networkURL
	l1Cursor, l2Cursor := p.l1Cursor, p.l2Cursor
	p.lock.Unlock()

	toL2, err := ledger.MessagesToL2(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	for i := l1Cursor; i < uint64(len(toL2)); i++ {
		msg := toL2[i]
		if err := ledger.ConsumeMessageToL2(ctx, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		}
		// A consumed message is never consumed again, even if its handler fails.
		p.advance(&p.l1Cursor, i+1)
		txHash, err := p.l2.HandleMessageToL2(context.WithoutCancel(ctx), msg)
		if err != nil {
			return nil, err
		}
		res.ConsumedMessages.FromL1 = append(res.ConsumedMessages.FromL1, FromL1{
			FromAddress:     msg.FromAddress.Hex(),
			ToAddress:       msg.ToAddress.FixedHex(),
			Selector:        msg.Selector,
			Payload:         orEmpty(msg.Payload),
			TransactionHash: txHash,
		})
	}

	for i, msg := range p.l2.MessagesToL1(l2Cursor) {
		if err := ledger.SendMessageFromL2(ctx, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		}
		p.advance(&p.l2Cursor, l2Cursor+uint64(i)+1)
		res.ConsumedMessages.FromL2 = append(res.ConsumedMessages.FromL2, FromL2{
			FromAddress: msg.FromAddress.FixedHex(),
			ToAddress:   L1Address(msg.ToAddress).Hex(),
			Payload:     orEmpty(msg.Payload),
		})
	}

	p.log.Debug("flushed messages",
		"fromL1", len(res.ConsumedMessages.FromL1),
		"fromL2", len(res.ConsumedMessages.FromL2),
	)
	return res, nil
}

// currentLedger returns the bound ledger, dialing it again after a restore.
func (p *Postman) currentLedger(ctx context.Context) (Ledger, error) {
	p.lock.Lock()
	ledger, loaded, url, contract := p.ledger, p.loaded, p.networkURL, p.contract
	p.lock.Unlock()

	if ledger != nil || !loaded {
		return ledger, nil
	}
	ledger, err := p.dial(ctx, url, contract)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	p.lock.Lock()
	p.ledger = ledger
	p.lock.Unlock()
	return ledger, nil
}

func (p *Postman) advance(cursor *uint64, to uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if to > *cursor {
		*cursor = to
	}
}

// L1Address interprets the low 20 bytes of [f] as an L1 address.
func L1Address(f felt.Felt) common.Address {
	return common.BytesToAddress(f[felt.Len-common.AddressLength:])
}

func orEmpty(fs []felt.Felt) []felt.Felt {
	if fs == nil {
		return []felt.Felt{}
	}
	return fs
}

// Image is the persisted form of the postman's configuration and cursors.
type Image struct {
	NetworkURL string `serialize:"true"`
	Contract   []byte `serialize:"true"`
	Loaded     bool   `serialize:"true"`
	L1Cursor   uint64 `serialize:"true"`
	L2Cursor   uint64 `serialize:"true"`
}

func (p *Postman) Export() *Image {
	p.lock.Lock()
	defer p.lock.Unlock()

	return &Image{
		NetworkURL: p.networkURL,
		Contract:   p.contract.Bytes(),
		Loaded:     p.loaded,
		L1Cursor:   p.l1Cursor,
		L2Cursor:   p.l2Cursor,
	}
}

// Restore replaces the configuration and cursors with [img]. The ledger is
// dialed again on the next flush. A nil image unloads the postman.
func (p *Postman) Restore(img *Image) {
	if img == nil {
		img = &Image{}
	}

	p.flushLock.Lock()
	defer p.flushLock.Unlock()

	p.lock.Lock()
	old := p.ledger
	p.ledger = nil
	p.networkURL = img.NetworkURL
	p.contract = common.BytesToAddress(img.Contract)
	p.loaded = img.Loaded
	p.l1Cursor = img.L1Cursor
	p.l2Cursor = img.L2Cursor
	p.lock.Unlock()

	if old != nil {
		old.Close()
	}
}
