// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativevm

import (
	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

const (
	// ProgramBalance keeps a single balance that can only grow.
	ProgramBalance = "balance"
	// ProgramL1L2 keeps per-user balances that can be withdrawn to and
	// deposited from L1.
	ProgramL1L2 = "l1l2"
	// ProgramTimestamp exposes the block context.
	ProgramTimestamp = "timestamp"
	// ProgramERC20 is the mintable fee token.
	ProgramERC20 = "erc20"

	// withdrawMessage tags L2->L1 withdrawal payloads.
	withdrawMessage = 0
)

var (
	// BalanceKey is the storage address of the balance program's balance.
	BalanceKey = felt.Selector("balance")

	erc20BalancesKey = felt.Selector("ERC20_balances")
	transferEvent    = felt.Selector("Transfer")
)

// UserBalanceKey is where the l1l2 program keeps the balance of [user].
func UserBalanceKey(user felt.Felt) felt.Felt {
	return felt.Hash(BalanceKey, user)
}

// TokenBalanceKey is where the fee token keeps the low word of [account]'s
// balance. The high word follows it.
func TokenBalanceKey(account felt.Felt) felt.Felt {
	return felt.Hash(erc20BalancesKey, account)
}

var programs = map[string]*program{}

func init() {
	register(&program{
		name: ProgramBalance,
		entries: []*entryPoint{
			{
				name:     "constructor",
				kind:     vm.Constructor,
				inputs:   []string{"initial_balance"},
				optional: true,
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					if len(args) == 1 {
						c.write(BalanceKey, args[0])
					}
					return nil, nil
				},
			},
			{
				name:   "increase_balance",
				kind:   vm.External,
				inputs: []string{"amount1", "amount2"},
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					c.write(BalanceKey, c.read(BalanceKey).Add(args[0]).Add(args[1]))
					return nil, nil
				},
			},
			{
				name:    "get_balance",
				kind:    vm.External,
				outputs: []string{"res"},
				view:    true,
				run: func(c *execCtx, _ []felt.Felt) ([]felt.Felt, error) {
					return []felt.Felt{c.read(BalanceKey)}, nil
				},
			},
		},
	})

	register(&program{
		name: ProgramL1L2,
		entries: []*entryPoint{
			{
				name:   "increase_balance",
				kind:   vm.External,
				inputs: []string{"user", "amount"},
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					key := UserBalanceKey(args[0])
					c.write(key, c.read(key).Add(args[1]))
					return nil, nil
				},
			},
			{
				name:    "get_balance",
				kind:    vm.External,
				inputs:  []string{"user"},
				outputs: []string{"balance"},
				view:    true,
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					return []felt.Felt{c.read(UserBalanceKey(args[0]))}, nil
				},
			},
			{
				name:   "withdraw",
				kind:   vm.External,
				inputs: []string{"user", "amount", "l1_address"},
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					user, amount, to := args[0], args[1], args[2]
					key := UserBalanceKey(user)
					balance := c.read(key)
					if balance.Cmp(amount) < 0 {
						return nil, vm.Errorf(codeAssertion, "insufficient balance: %s < %s", balance.Decimal(), amount.Decimal())
					}
					c.write(key, balance.Sub(amount))
					c.sendMessage(to, []felt.Felt{felt.FromUint64(withdrawMessage), user, amount})
					return nil, nil
				},
			},
			{
				name:   "deposit",
				kind:   vm.L1Handler,
				inputs: []string{"from_address", "user", "amount"},
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					key := UserBalanceKey(args[1])
					c.write(key, c.read(key).Add(args[2]))
					return nil, nil
				},
			},
		},
	})

	register(&program{
		name: ProgramTimestamp,
		entries: []*entryPoint{
			{
				name:    "get_timestamp",
				kind:    vm.External,
				outputs: []string{"ts"},
				view:    true,
				run: func(c *execCtx, _ []felt.Felt) ([]felt.Felt, error) {
					return []felt.Felt{felt.FromUint64(uint64(c.block.Timestamp))}, nil
				},
			},
			{
				name:    "get_block_number",
				kind:    vm.External,
				outputs: []string{"block_number"},
				view:    true,
				run: func(c *execCtx, _ []felt.Felt) ([]felt.Felt, error) {
					return []felt.Felt{felt.FromUint64(c.block.Number)}, nil
				},
			},
		},
	})

	register(&program{
		name: ProgramERC20,
		entries: []*entryPoint{
			{
				name:   "mint",
				kind:   vm.External,
				inputs: []string{"recipient", "amount_low", "amount_high"},
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					recipient := args[0]
					low := TokenBalanceKey(recipient)
					high := low.Add(felt.One)
					c.write(low, c.read(low).Add(args[1]))
					c.write(high, c.read(high).Add(args[2]))
					c.emit(chain.Event{
						Keys: []felt.Felt{transferEvent},
						Data: []felt.Felt{felt.Zero, recipient, args[1], args[2]},
					})
					return nil, nil
				},
			},
			{
				name:    "balanceOf",
				kind:    vm.External,
				inputs:  []string{"account"},
				outputs: []string{"balance_low", "balance_high"},
				view:    true,
				run: func(c *execCtx, args []felt.Felt) ([]felt.Felt, error) {
					low := TokenBalanceKey(args[0])
					return []felt.Felt{c.read(low), c.read(low.Add(felt.One))}, nil
				},
			},
		},
	})
}

// execCtx is the view a running entry point has of the world.
type execCtx struct {
	st     state.Mutable
	self   felt.Felt
	caller felt.Felt
	block  vm.BlockContext

	writes   int
	messages []state.MessageToL1
	events   []chain.Event
}

func (c *execCtx) read(key felt.Felt) felt.Felt {
	return c.st.Storage(c.self, key)
}

func (c *execCtx) write(key, value felt.Felt) {
	c.st.SetStorage(c.self, key, value)
	c.writes++
}

func (c *execCtx) sendMessage(to felt.Felt, payload []felt.Felt) {
	msg := state.MessageToL1{FromAddress: c.self, ToAddress: to, Payload: payload}
	c.st.SendMessageToL1(msg)
	c.messages = append(c.messages, msg)
}

func (c *execCtx) emit(e chain.Event) {
	e.FromAddress = c.self
	c.events = append(c.events, e)
}
