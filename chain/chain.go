// Package chain provides the execution environment distributors and the
// factory run in: native balances, deployed contracts, call frames and event
// logs, with every transaction applied atomically.
//
// Transactions are strictly serialized. Each state mutation inside a
// transaction registers an undo step on the transaction journal; a failing
// transaction replays its journal in reverse so that no partial effects
// (balances, deployments, logs, commit hooks) survive.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// MaxCallDepth bounds nested contract calls within one transaction.
const MaxCallDepth = 1024

// Contract is any code-bearing account deployed on the chain.
type Contract interface {
	Address() ledger.Address
}

// Payable is a contract that reacts to incoming native currency. Receive runs
// in a frame whose Caller is the sender and whose Self is the contract.
type Payable interface {
	Contract
	Receive(c *Frame, amount *big.Int) error
}

// Receipt is the outcome of a committed transaction.
type Receipt struct {
	Origin ledger.Address
	Logs   []*Log
}

// LogsFrom returns the receipt logs emitted by addr, in order.
func (r *Receipt) LogsFrom(addr ledger.Address) []*Log {
	var out []*Log
	for _, l := range r.Logs {
		if l.Address == addr {
			out = append(out, l)
		}
	}
	return out
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger used for transaction tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// Chain holds the world state.
type Chain struct {
	exec sync.Mutex // serializes transactions

	mu        sync.RWMutex // guards the maps and history below
	balances  map[ledger.Address]*big.Int
	contracts map[ledger.Address]Contract
	nonces    map[ledger.Address]uint64
	history   []*Log

	logger *zap.Logger
}

// New creates an empty chain.
func New(opts ...Option) *Chain {
	c := &Chain{
		balances:  make(map[ledger.Address]*big.Int),
		contracts: make(map[ledger.Address]Contract),
		nonces:    make(map[ledger.Address]uint64),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint credits addr with amount of native currency outside of any
// transaction. It is meant for genesis funding and tests, and waits for the
// transaction in flight so a revert never overwrites the minted value. It
// must not be called from inside a transaction body.
func (c *Chain) Mint(addr ledger.Address, amount *big.Int) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	c.exec.Lock()
	defer c.exec.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	next := new(big.Int).Add(c.balanceLocked(addr), amount)
	if next.Cmp(ledger.MaxAmount) > 0 {
		return fmt.Errorf("%w: balance overflow", ledger.ErrInvalidAmount)
	}
	c.balances[addr] = next
	return nil
}

// BalanceOf returns the native balance of addr.
func (c *Chain) BalanceOf(addr ledger.Address) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ledger.Copy(c.balanceLocked(addr))
}

// Contract returns the contract deployed at addr.
func (c *Chain) Contract(addr ledger.Address) (Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.contracts[addr]
	return ct, ok
}

// History returns all committed logs in emission order.
func (c *Chain) History() []*Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Log, len(c.history))
	copy(out, c.history)
	return out
}

// Execute runs fn as one atomic transaction originated by origin. The root
// frame has origin as both Caller and Self. If fn fails, every effect is
// rolled back and the error is returned unchanged.
func (c *Chain) Execute(ctx context.Context, origin ledger.Address, fn func(*Frame) error) (rcpt *Receipt, err error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: transaction body", ErrNilParam)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.exec.Lock()
	defer c.exec.Unlock()

	tx := &txState{ctx: ctx, chain: c}
	root := &Frame{tx: tx, caller: origin, self: origin}

	defer func() {
		if p := recover(); p != nil {
			tx.revert()
			panic(p)
		}
	}()

	if err := fn(root); err != nil {
		tx.revert()
		c.logger.Warn("transaction reverted",
			zap.Stringer("origin", origin),
			zap.Error(err))
		return nil, err
	}

	for _, hook := range tx.commits {
		if err := hook(ctx); err != nil {
			tx.revert()
			c.logger.Warn("transaction commit hook failed",
				zap.Stringer("origin", origin),
				zap.Error(err))
			return nil, err
		}
	}
	tx.closed = true

	c.mu.Lock()
	for _, l := range tx.logs {
		l.Index = uint64(len(c.history))
		c.history = append(c.history, l)
	}
	c.mu.Unlock()

	c.logger.Debug("transaction committed",
		zap.Stringer("origin", origin),
		zap.Int("logs", len(tx.logs)))
	return &Receipt{Origin: origin, Logs: tx.logs}, nil
}

// Transfer sends native currency from an externally owned account. When to
// is a payable contract its receive hook runs inside the same transaction.
func (c *Chain) Transfer(ctx context.Context, from, to ledger.Address, amount *big.Int) (*Receipt, error) {
	return c.Execute(ctx, from, func(f *Frame) error {
		return f.SendValue(to, amount)
	})
}

func (c *Chain) balanceLocked(addr ledger.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

// setBalance stores v for addr and returns the previous value.
func (c *Chain) setBalance(addr ledger.Address, v *big.Int) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.balanceLocked(addr)
	if v.Sign() == 0 {
		delete(c.balances, addr)
	} else {
		c.balances[addr] = v
	}
	return prev
}
