// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativevm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

type entryPoint struct {
	name    string
	kind    vm.EntryType
	inputs  []string
	outputs []string
	view    bool
	// optional entry points also accept empty calldata
	optional bool

	run func(c *execCtx, args []felt.Felt) ([]felt.Felt, error)
}

func (e *entryPoint) checkArity(calldata []felt.Felt) error {
	if len(calldata) == len(e.inputs) || (e.optional && len(calldata) == 0) {
		return nil
	}
	return vm.Errorf(codeInvalidCalldata, "%s expects %d arguments, got %d", e.name, len(e.inputs), len(calldata))
}

type program struct {
	name    string
	entries []*entryPoint

	bySelector map[vm.EntryType]map[felt.Felt]*entryPoint
	abi        json.RawMessage
}

func register(p *program) {
	p.bySelector = map[vm.EntryType]map[felt.Felt]*entryPoint{
		vm.Constructor: {},
		vm.External:    {},
		vm.L1Handler:   {},
	}
	for _, e := range p.entries {
		p.bySelector[e.kind][felt.Selector(e.name)] = e
	}
	abi, err := json.Marshal(p.describe())
	if err != nil {
		panic(err)
	}
	p.abi = abi
	programs[p.name] = p
}

func (p *program) lookup(kind vm.EntryType, selector felt.Felt) (*entryPoint, bool) {
	e, ok := p.bySelector[kind][selector]
	return e, ok
}

type abiParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type abiEntry struct {
	Type            string     `json:"type"`
	Name            string     `json:"name"`
	Inputs          []abiParam `json:"inputs"`
	Outputs         []abiParam `json:"outputs"`
	StateMutability string     `json:"stateMutability,omitempty"`
}

func (p *program) describe() []abiEntry {
	out := make([]abiEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entry := abiEntry{
			Type:    "function",
			Name:    e.name,
			Inputs:  params(e.inputs),
			Outputs: params(e.outputs),
		}
		switch e.kind {
		case vm.Constructor:
			entry.Type = "constructor"
		case vm.L1Handler:
			entry.Type = "l1_handler"
		}
		if e.view {
			entry.StateMutability = "view"
		}
		out = append(out, entry)
	}
	return out
}

func params(names []string) []abiParam {
	out := make([]abiParam, 0, len(names))
	for _, n := range names {
		out = append(out, abiParam{Name: n, Type: "felt"})
	}
	return out
}

// NewClass returns the class of a built-in program.
func NewClass(name string) (*state.Class, error) {
	p, ok := programs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
	return &state.Class{Program: p.name, ABI: p.abi}, nil
}

func MustClass(name string) *state.Class {
	c, err := NewClass(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Programs lists the names of the built-in programs.
func Programs() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
