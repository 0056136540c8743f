// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/l2devnet/felt"
	"github.com/ava-labs/l2devnet/origin"
	"github.com/ava-labs/l2devnet/postman"
	"github.com/ava-labs/l2devnet/state"
	"github.com/ava-labs/l2devnet/vm"
)

const (
	DefaultGasPrice = 100_000_000_000

	// feeTokenSalt is the salt the fee token is deployed with at genesis.
	feeTokenSalt = 10
)

// DefaultChainID is the chain id transaction hashes are bound to.
var DefaultChainID = felt.FromShortString("SN_GOERLI")

// DumpOn is the policy that triggers automatic dumps.
type DumpOn uint8

const (
	DumpOnNone DumpOn = iota
	DumpOnExit
	DumpOnTransaction
)

func (d DumpOn) String() string {
	switch d {
	case DumpOnExit:
		return "exit"
	case DumpOnTransaction:
		return "transaction"
	default:
		return ""
	}
}

// ParseDumpOn parses a --dump-on value. The empty string disables dumping.
func ParseDumpOn(s string) (DumpOn, error) {
	switch strings.TrimSpace(s) {
	case "":
		return DumpOnNone, nil
	case "exit":
		return DumpOnExit, nil
	case "transaction":
		return DumpOnTransaction, nil
	default:
		return DumpOnNone, fmt.Errorf("Invalid --dump-on option: %s. Valid options: exit, transaction", s)
	}
}

// Config is the user facing configuration of a devnet.
type Config struct {
	LiteModeBlockHash  bool
	LiteModeDeployHash bool
	GasPrice           uint64
	ChainID            felt.Felt
	// StartTime, when non-nil, is the timestamp of the first block.
	StartTime *int64

	DumpPath string
	DumpOn   DumpOn
}

func DefaultConfig() Config {
	return Config{
		GasPrice: DefaultGasPrice,
		ChainID:  DefaultChainID,
	}
}

// Verify checks that the configuration is usable.
func (c *Config) Verify() error {
	if c.DumpOn != DumpOnNone && c.DumpPath == "" {
		return &ValidationError{Message: "--dump-path required if --dump-on present"}
	}
	if c.StartTime != nil && *c.StartTime < 0 {
		return &ValidationError{Message: "--start-time must be a non-negative unix timestamp"}
	}
	return nil
}

// Option customizes the collaborators of a devnet.
type Option func(*options)

type options struct {
	clock      *mockable.Clock
	origin     origin.Origin
	executor   vm.Executor
	feeToken   *state.Class
	dialer     postman.Dialer
	registerer prometheus.Registerer
	log        log.Logger
}

// WithClock pins the wall clock, mostly for tests.
func WithClock(clock *mockable.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithOrigin forks the devnet from [o].
func WithOrigin(o origin.Origin) Option {
	return func(opts *options) { opts.origin = o }
}

// WithExecutor replaces the contract executor.
func WithExecutor(e vm.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithFeeToken sets the class of the fee token deployed at genesis. A nil
// class disables the fee token.
func WithFeeToken(class *state.Class) Option {
	return func(o *options) { o.feeToken = class }
}

// WithDialer replaces how the postman connects to L1.
func WithDialer(d postman.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithRegisterer registers the devnet metrics on [r].
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

func WithLogger(l log.Logger) Option {
	return func(o *options) { o.log = l }
}
