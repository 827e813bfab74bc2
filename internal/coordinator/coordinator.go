// Package coordinator drives the transaction lifecycle of one contract for one
// sending account: nonce-serialized submission, receipt polling and revert
// reason recovery by replaying failed transactions as calls.
package coordinator

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ligun0805/txcoord/internal/artifact"
	"github.com/ligun0805/txcoord/internal/session"
	"github.com/ligun0805/txcoord/internal/txopts"
)

const (
	DefaultTimeout      = 120 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Backend is the RPC session the coordinator drives. *session.Session
// implements it.
type Backend interface {
	DefaultAccount() (common.Address, bool)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, opts txopts.Options, to *common.Address, data []byte) (common.Hash, error)
	// TransactionReceipt returns ethereum.NotFound while the tx is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	RecordedTransaction(ctx context.Context, hash common.Hash) (*session.RecordedTx, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
}

var _ Backend = (*session.Session)(nil)

// contractState is either undeployedState or deployedState.
type contractState interface {
	deployedAt() (common.Address, bool)
}

type undeployedState struct{ bytecode []byte }

func (undeployedState) deployedAt() (common.Address, bool) { return common.Address{}, false }

type deployedState struct{ address common.Address }

func (s deployedState) deployedAt() (common.Address, bool) { return s.address, true }

// WaitOptions bounds the receipt wait. Zero fields fall back to the
// coordinator's defaults.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Coordinator owns one contract binding. It is safe for concurrent use.
type Coordinator struct {
	backend  Backend
	name     string
	abi      abi.ABI
	defaults func() txopts.Options
	wait     WaitOptions
	logger   log.Logger

	state     atomic.Pointer[contractState]
	deploying atomic.Bool

	// one-slot semaphore guarding nonce fetch + submit
	nonceLock chan struct{}
}

type Option func(*Coordinator)

// WithDefaults sets the provider of process-wide default transaction options.
func WithDefaults(f func() txopts.Options) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.defaults = f
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.wait.Timeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.wait.PollInterval = d
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New binds contract. With a nil address the coordinator starts Undeployed and
// needs the contract's creation bytecode; otherwise it starts Deployed.
func New(backend Backend, contract artifact.Contract, address *common.Address, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		backend:   backend,
		name:      contract.Name,
		abi:       contract.ABI,
		defaults:  func() txopts.Options { return txopts.Options{} },
		wait:      WaitOptions{Timeout: DefaultTimeout, PollInterval: DefaultPollInterval},
		nonceLock: make(chan struct{}, 1),
	}
	c.logger = log.Root().New("contract", contract.Name)
	for _, o := range opts {
		o(c)
	}

	var st contractState
	if address != nil {
		st = deployedState{address: *address}
	} else {
		if !contract.HasBytecode() {
			return nil, ErrNoBytecode
		}
		st = undeployedState{bytecode: append([]byte(nil), contract.Bytecode...)}
	}
	c.state.Store(&st)
	return c, nil
}

// Address returns the contract address, or ErrNotDeployed.
func (c *Coordinator) Address() (common.Address, error) {
	if addr, ok := (*c.state.Load()).deployedAt(); ok {
		return addr, nil
	}
	return common.Address{}, ErrNotDeployed
}

// Deployed reports whether the binding is address-bound.
func (c *Coordinator) Deployed() bool {
	_, ok := (*c.state.Load()).deployedAt()
	return ok
}

// Name is the logical contract name.
func (c *Coordinator) Name() string { return c.name }

// ABI returns the contract interface.
func (c *Coordinator) ABI() abi.ABI { return c.abi }

func (c *Coordinator) waitOptions(w WaitOptions) WaitOptions {
	if w.Timeout <= 0 {
		w.Timeout = c.wait.Timeout
	}
	if w.PollInterval <= 0 {
		w.PollInterval = c.wait.PollInterval
	}
	return w
}
