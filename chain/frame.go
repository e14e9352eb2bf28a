package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// txState is the journal of one transaction.
type txState struct {
	ctx     context.Context
	chain   *Chain
	journal []func()
	commits []func(context.Context) error
	logs    []*Log
	closed  bool
}

func (tx *txState) revert() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
	tx.commits = nil
	tx.logs = nil
	tx.closed = true
}

// Frame is one call level of a transaction: Caller invoked code running as Self.
type Frame struct {
	tx     *txState
	caller ledger.Address
	self   ledger.Address
	depth  int
}

// Context returns the context of the enclosing transaction.
func (f *Frame) Context() context.Context { return f.tx.ctx }

// Chain returns the chain the frame executes on.
func (f *Frame) Chain() *Chain { return f.tx.chain }

// Caller returns the account that invoked the current frame.
func (f *Frame) Caller() ledger.Address { return f.caller }

// Self returns the account the current frame executes as.
func (f *Frame) Self() ledger.Address { return f.self }

// Depth returns the nesting level, 0 for the transaction root.
func (f *Frame) Depth() int { return f.depth }

// Call runs fn in a nested frame executing as target, with the current
// Self as caller.
func (f *Frame) Call(target ledger.Address, fn func(*Frame) error) error {
	inner, err := f.enter(target)
	if err != nil {
		return err
	}
	return fn(inner)
}

func (f *Frame) enter(target ledger.Address) (*Frame, error) {
	if f.tx.closed {
		return nil, ErrTxClosed
	}
	if f.depth+1 > MaxCallDepth {
		return nil, fmt.Errorf("%w: %d", ErrCallDepth, MaxCallDepth)
	}
	return &Frame{tx: f.tx, caller: f.self, self: target, depth: f.depth + 1}, nil
}

// OnRevert registers an undo step run if the transaction fails.
func (f *Frame) OnRevert(undo func()) {
	f.tx.journal = append(f.tx.journal, undo)
}

// OnCommit registers a hook run, in registration order, once the transaction
// body succeeded. A failing hook reverts the whole transaction.
func (f *Frame) OnCommit(hook func(context.Context) error) {
	f.tx.commits = append(f.tx.commits, hook)
}

// Balance returns the native balance of addr as seen inside the transaction.
func (f *Frame) Balance(addr ledger.Address) *big.Int {
	return f.tx.chain.BalanceOf(addr)
}

// SendValue moves amount of native currency from Self to to. If to is a
// contract, its receive hook runs in a nested frame.
func (f *Frame) SendValue(to ledger.Address, amount *big.Int) error {
	if f.tx.closed {
		return ErrTxClosed
	}
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}

	ch := f.tx.chain
	target, isContract := ch.Contract(to)
	var payable Payable
	if isContract {
		p, ok := target.(Payable)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotPayable, to)
		}
		payable = p
	}

	if amount.Sign() > 0 && to != f.self {
		from := f.self
		fromBal := ch.BalanceOf(from)
		if fromBal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
		}
		toBal := ch.BalanceOf(to)
		nextTo := new(big.Int).Add(toBal, amount)
		if nextTo.Cmp(ledger.MaxAmount) > 0 {
			return fmt.Errorf("%w: balance overflow", ledger.ErrInvalidAmount)
		}

		prevFrom := ch.setBalance(from, new(big.Int).Sub(fromBal, amount))
		prevTo := ch.setBalance(to, nextTo)
		f.OnRevert(func() {
			ch.setBalance(to, prevTo)
			ch.setBalance(from, prevFrom)
		})
	}

	if payable == nil {
		return nil
	}
	inner, err := f.enter(to)
	if err != nil {
		return err
	}
	return payable.Receive(inner, ledger.Copy(amount))
}

// Emit appends a log emitted by Self.
func (f *Frame) Emit(ev *Event, args ...interface{}) error {
	if f.tx.closed {
		return ErrTxClosed
	}
	l, err := newLog(f.self, ev, args)
	if err != nil {
		return err
	}
	f.tx.logs = append(f.tx.logs, l)
	return nil
}

// NewAddress derives a fresh contract address from Self and its nonce:
// Hash160(self || nonce). The nonce bump is journaled.
func (f *Frame) NewAddress() ledger.Address {
	ch := f.tx.chain
	ch.mu.Lock()
	nonce := ch.nonces[f.self]
	ch.nonces[f.self] = nonce + 1
	ch.mu.Unlock()

	self := f.self
	f.OnRevert(func() {
		ch.mu.Lock()
		ch.nonces[self] = nonce
		ch.mu.Unlock()
	})

	var buf [ledger.AddressSize + 8]byte
	copy(buf[:ledger.AddressSize], self[:])
	binary.BigEndian.PutUint64(buf[ledger.AddressSize:], nonce)

	var addr ledger.Address
	copy(addr[:], bsvhash.Hash160(buf[:]))
	return addr
}

// Deploy registers contract at its address. The deployment is undone if the
// transaction fails.
func (f *Frame) Deploy(contract Contract) error {
	if f.tx.closed {
		return ErrTxClosed
	}
	if contract == nil {
		return fmt.Errorf("%w: contract", ErrNilParam)
	}
	addr := contract.Address()
	ch := f.tx.chain

	ch.mu.Lock()
	if _, taken := ch.contracts[addr]; taken {
		ch.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	ch.contracts[addr] = contract
	ch.mu.Unlock()

	f.OnRevert(func() {
		ch.mu.Lock()
		delete(ch.contracts, addr)
		ch.mu.Unlock()
	})
	return nil
}
