package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// Token is an opaque fungible-token ledger. Transfer moves amount from the
// account the frame executes as (the token's msg.sender) to to.
type Token interface {
	Contract
	BalanceOf(owner ledger.Address) *big.Int
	Transfer(c *Frame, to ledger.Address, amount *big.Int) error
}

// TokenReceiver is a contract notified when it receives tokens from a
// token deployed with receive hooks enabled.
type TokenReceiver interface {
	Contract
	OnTokenReceived(c *Frame, token, from ledger.Address, amount *big.Int) error
}

// TransferEvent is emitted by MemToken on every balance movement.
var TransferEvent = NewEvent("Transfer",
	Param{Name: "from", Type: TypeAddress},
	Param{Name: "to", Type: TypeAddress},
	Param{Name: "value", Type: TypeUint256},
)

// TokenOption configures a MemToken.
type TokenOption func(*MemToken)

// WithReceiveHooks makes the token call TokenReceiver.OnTokenReceived on
// contract recipients after each transfer.
func WithReceiveHooks() TokenOption {
	return func(t *MemToken) { t.hooks = true }
}

// MemToken is an in-memory mintable token whose balance changes are
// journaled on the enclosing transaction.
type MemToken struct {
	addr   ledger.Address
	minter ledger.Address
	hooks  bool

	mu       sync.RWMutex
	balances map[ledger.Address]*big.Int
	supply   *big.Int
}

// Compile-time interface check.
var _ Token = (*MemToken)(nil)

// NewMemToken deploys a token from the frame's Self, which becomes the minter.
func NewMemToken(c *Frame, opts ...TokenOption) (*MemToken, error) {
	t := &MemToken{
		addr:     c.NewAddress(),
		minter:   c.Self(),
		balances: make(map[ledger.Address]*big.Int),
		supply:   new(big.Int),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := c.Deploy(t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeployToken deploys a MemToken in its own transaction.
func DeployToken(ctx context.Context, ch *Chain, deployer ledger.Address, opts ...TokenOption) (*MemToken, error) {
	var t *MemToken
	_, err := ch.Execute(ctx, deployer, func(f *Frame) error {
		var err error
		t, err = NewMemToken(f, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Address returns the token contract address.
func (t *MemToken) Address() ledger.Address { return t.addr }

// Minter returns the account allowed to mint.
func (t *MemToken) Minter() ledger.Address { return t.minter }

// BalanceOf returns the token balance of owner.
func (t *MemToken) BalanceOf(owner ledger.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ledger.Copy(t.balances[owner])
}

// TotalSupply returns the minted supply.
func (t *MemToken) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ledger.Copy(t.supply)
}

// Mint creates amount tokens for to. Only the minter may call it.
func (t *MemToken) Mint(c *Frame, to ledger.Address, amount *big.Int) error {
	return c.Call(t.addr, func(tf *Frame) error {
		if tf.Caller() != t.minter {
			return fmt.Errorf("%w: %s", ErrNotMinter, tf.Caller())
		}
		if err := ledger.CheckAmount(amount); err != nil {
			return err
		}
		if to.IsZero() {
			return fmt.Errorf("%w: mint to zero address", ledger.ErrInvalidAddress)
		}

		t.mu.Lock()
		supply := new(big.Int).Add(t.supply, amount)
		if supply.Cmp(ledger.MaxAmount) > 0 {
			t.mu.Unlock()
			return fmt.Errorf("%w: supply overflow", ledger.ErrInvalidAmount)
		}
		prevSupply := t.supply
		prevTo := ledger.Copy(t.balances[to])
		t.supply = supply
		t.balances[to] = new(big.Int).Add(prevTo, amount)
		t.mu.Unlock()

		tf.OnRevert(func() {
			t.mu.Lock()
			t.supply = prevSupply
			t.balances[to] = prevTo
			t.mu.Unlock()
		})
		return tf.Emit(TransferEvent, ledger.ZeroAddress, to, ledger.Copy(amount))
	})
}

// Transfer moves amount from the calling account to to.
func (t *MemToken) Transfer(c *Frame, to ledger.Address, amount *big.Int) error {
	return c.Call(t.addr, func(tf *Frame) error {
		from := tf.Caller()
		if err := ledger.CheckAmount(amount); err != nil {
			return err
		}
		if to.IsZero() {
			return fmt.Errorf("%w: transfer to zero address", ledger.ErrInvalidAddress)
		}

		t.mu.Lock()
		prevFrom := ledger.Copy(t.balances[from])
		if prevFrom.Cmp(amount) < 0 {
			t.mu.Unlock()
			return fmt.Errorf("%w: %s holds %s tokens, needs %s", ErrInsufficientBalance, from, prevFrom, amount)
		}
		t.balances[from] = new(big.Int).Sub(prevFrom, amount)
		prevTo := ledger.Copy(t.balances[to])
		t.balances[to] = new(big.Int).Add(prevTo, amount)
		t.mu.Unlock()

		tf.OnRevert(func() {
			t.mu.Lock()
			t.balances[to] = prevTo
			t.balances[from] = prevFrom
			t.mu.Unlock()
		})

		if err := tf.Emit(TransferEvent, from, to, ledger.Copy(amount)); err != nil {
			return err
		}
		if !t.hooks {
			return nil
		}
		ct, ok := tf.Chain().Contract(to)
		if !ok {
			return nil
		}
		recv, ok := ct.(TokenReceiver)
		if !ok {
			return nil
		}
		return tf.Call(to, func(rf *Frame) error {
			return recv.OnTokenReceived(rf, t.addr, from, ledger.Copy(amount))
		})
	})
}
