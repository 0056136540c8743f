// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativevm

import (
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
)

var _ state.Mutable = (*overlay)(nil)

type slot struct {
	address, key felt.Felt
}

// overlay buffers writes over a read-only state so that calls and fee
// estimates can run external entry points without side effects.
type overlay struct {
	base      state.Reader
	storage   map[slot]felt.Felt
	contracts map[felt.Felt]felt.Felt
	classes   map[felt.Felt]*state.Class
}

func newOverlay(base state.Reader) *overlay {
	return &overlay{
		base:      base,
		storage:   map[slot]felt.Felt{},
		contracts: map[felt.Felt]felt.Felt{},
		classes:   map[felt.Felt]*state.Class{},
	}
}

func (o *overlay) Storage(address, key felt.Felt) felt.Felt {
	if v, ok := o.storage[slot{address, key}]; ok {
		return v
	}
	return o.base.Storage(address, key)
}

func (o *overlay) ClassHashAt(address felt.Felt) (felt.Felt, bool) {
	if h, ok := o.contracts[address]; ok {
		return h, true
	}
	return o.base.ClassHashAt(address)
}

func (o *overlay) Class(hash felt.Felt) (*state.Class, bool) {
	if c, ok := o.classes[hash]; ok {
		return c, true
	}
	return o.base.Class(hash)
}

func (o *overlay) SetStorage(address, key, value felt.Felt) {
	o.storage[slot{address, key}] = value
}

func (o *overlay) DeployContract(address, classHash felt.Felt) error {
	if _, ok := o.ClassHashAt(address); ok {
		return state.ErrAlreadyDeployed
	}
	o.contracts[address] = classHash
	return nil
}

func (o *overlay) DeclareClass(hash felt.Felt, class *state.Class) {
	o.classes[hash] = class
}

func (o *overlay) SendMessageToL1(state.MessageToL1) {}
