package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libsplit-go/ledger"
)

func makeAddr(seed byte) ledger.Address {
	var addr ledger.Address
	for i := range addr {
		addr[i] = seed
	}
	return addr
}

// recorder is a payable contract that remembers what it received.
type recorder struct {
	addr      ledger.Address
	callers   []ledger.Address
	amounts   []*big.Int
	onReceive func(c *Frame, amount *big.Int) error
}

func (r *recorder) Address() ledger.Address { return r.addr }

func (r *recorder) Receive(c *Frame, amount *big.Int) error {
	r.callers = append(r.callers, c.Caller())
	r.amounts = append(r.amounts, amount)
	if r.onReceive != nil {
		return r.onReceive(c, amount)
	}
	return nil
}

// inert is a contract without a receive hook.
type inert struct{ addr ledger.Address }

func (i *inert) Address() ledger.Address { return i.addr }

func deploy(t *testing.T, ch *Chain, from ledger.Address, ct Contract) {
	t.Helper()
	_, err := ch.Execute(context.Background(), from, func(f *Frame) error {
		return f.Deploy(ct)
	})
	require.NoError(t, err)
}

// --- Native balances ---

func TestTransfer_BetweenAccounts(t *testing.T) {
	ch := New()
	alice, bob := makeAddr(0x01), makeAddr(0x02)
	require.NoError(t, ch.Mint(alice, ledger.Ether(10)))

	rcpt, err := ch.Transfer(context.Background(), alice, bob, ledger.Ether(3))
	require.NoError(t, err)
	assert.Empty(t, rcpt.Logs)

	assertAmount(t, ledger.Ether(7), ch.BalanceOf(alice))
	assertAmount(t, ledger.Ether(3), ch.BalanceOf(bob))
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	ch := New()
	alice, bob := makeAddr(0x01), makeAddr(0x02)
	require.NoError(t, ch.Mint(alice, big.NewInt(5)))

	_, err := ch.Transfer(context.Background(), alice, bob, big.NewInt(6))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assertAmount(t, big.NewInt(5), ch.BalanceOf(alice))
	assert.Equal(t, int64(0), ch.BalanceOf(bob).Int64())
}

func TestTransfer_InvalidAmount(t *testing.T) {
	ch := New()
	_, err := ch.Transfer(context.Background(), makeAddr(1), makeAddr(2), big.NewInt(-1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestMint_Overflow(t *testing.T) {
	ch := New()
	require.NoError(t, ch.Mint(makeAddr(1), ledger.MaxAmount))
	assert.ErrorIs(t, ch.Mint(makeAddr(1), big.NewInt(1)), ledger.ErrInvalidAmount)
}

// --- Atomicity ---

func TestExecute_RevertsEverythingOnError(t *testing.T) {
	ch := New()
	alice, bob, carol := makeAddr(0x01), makeAddr(0x02), makeAddr(0x03)
	require.NoError(t, ch.Mint(alice, big.NewInt(100)))
	boom := errors.New("boom")
	committed := false

	_, err := ch.Execute(context.Background(), alice, func(f *Frame) error {
		require.NoError(t, f.SendValue(bob, big.NewInt(10)))
		require.NoError(t, f.SendValue(carol, big.NewInt(20)))
		require.NoError(t, f.Emit(TransferEvent, alice, bob, big.NewInt(10)))
		require.NoError(t, f.Deploy(&inert{addr: makeAddr(0x09)}))
		f.OnCommit(func(context.Context) error {
			committed = true
			return nil
		})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assertAmount(t, big.NewInt(100), ch.BalanceOf(alice))
	assert.Equal(t, int64(0), ch.BalanceOf(bob).Int64())
	assert.Equal(t, int64(0), ch.BalanceOf(carol).Int64())
	assert.Empty(t, ch.History())
	assert.False(t, committed)
	_, ok := ch.Contract(makeAddr(0x09))
	assert.False(t, ok)
}

func TestMint_WaitsForTransactionInFlight(t *testing.T) {
	ch := New()
	alice, bob := makeAddr(0x01), makeAddr(0x02)
	require.NoError(t, ch.Mint(alice, big.NewInt(100)))
	boom := errors.New("boom")

	started := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		_, err := ch.Execute(context.Background(), alice, func(f *Frame) error {
			if err := f.SendValue(bob, big.NewInt(30)); err != nil {
				return err
			}
			close(started)
			<-release
			return boom
		})
		txDone <- err
	}()
	<-started

	minted := make(chan error, 1)
	go func() { minted <- ch.Mint(alice, big.NewInt(5)) }()

	select {
	case <-minted:
		t.Fatal("Mint completed while a transaction was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.ErrorIs(t, <-txDone, boom)
	require.NoError(t, <-minted)

	assertAmount(t, big.NewInt(105), ch.BalanceOf(alice))
	assert.Zero(t, ch.BalanceOf(bob).Sign())
}

func TestExecute_CommitHookFailureReverts(t *testing.T) {
	ch := New()
	alice, bob := makeAddr(0x01), makeAddr(0x02)
	require.NoError(t, ch.Mint(alice, big.NewInt(50)))
	hookErr := errors.New("store down")

	var order []int
	_, err := ch.Execute(context.Background(), alice, func(f *Frame) error {
		f.OnCommit(func(context.Context) error { order = append(order, 1); return nil })
		f.OnCommit(func(context.Context) error { order = append(order, 2); return hookErr })
		return f.SendValue(bob, big.NewInt(50))
	})
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, []int{1, 2}, order)
	assertAmount(t, big.NewInt(50), ch.BalanceOf(alice))
}

func TestExecute_CanceledContext(t *testing.T) {
	ch := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ch.Execute(ctx, makeAddr(1), func(*Frame) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_FrameUnusableAfterCommit(t *testing.T) {
	ch := New()
	var leaked *Frame
	_, err := ch.Execute(context.Background(), makeAddr(1), func(f *Frame) error {
		leaked = f
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, leaked.Emit(TransferEvent, makeAddr(1), makeAddr(2), big.NewInt(1)), ErrTxClosed)
}

// --- Contracts ---

func TestSendValue_InvokesReceiveHook(t *testing.T) {
	ch := New()
	alice := makeAddr(0x01)
	r := &recorder{addr: makeAddr(0x0A)}
	deploy(t, ch, alice, r)
	require.NoError(t, ch.Mint(alice, big.NewInt(9)))

	_, err := ch.Transfer(context.Background(), alice, r.addr, big.NewInt(9))
	require.NoError(t, err)

	require.Len(t, r.callers, 1)
	assert.Equal(t, alice, r.callers[0])
	assertAmount(t, big.NewInt(9), r.amounts[0])
	assertAmount(t, big.NewInt(9), ch.BalanceOf(r.addr))
}

func TestSendValue_ZeroAmountStillCallsHook(t *testing.T) {
	ch := New()
	r := &recorder{addr: makeAddr(0x0A)}
	deploy(t, ch, makeAddr(1), r)

	_, err := ch.Transfer(context.Background(), makeAddr(1), r.addr, big.NewInt(0))
	require.NoError(t, err)
	require.Len(t, r.amounts, 1)
	assert.Equal(t, int64(0), r.amounts[0].Int64())
}

func TestSendValue_HookErrorReverts(t *testing.T) {
	ch := New()
	alice := makeAddr(0x01)
	hookErr := errors.New("rejected")
	r := &recorder{addr: makeAddr(0x0A), onReceive: func(*Frame, *big.Int) error { return hookErr }}
	deploy(t, ch, alice, r)
	require.NoError(t, ch.Mint(alice, big.NewInt(9)))

	_, err := ch.Transfer(context.Background(), alice, r.addr, big.NewInt(9))
	assert.ErrorIs(t, err, hookErr)
	assertAmount(t, big.NewInt(9), ch.BalanceOf(alice))
	assert.Equal(t, int64(0), ch.BalanceOf(r.addr).Int64())
}

func TestSendValue_NotPayable(t *testing.T) {
	ch := New()
	alice := makeAddr(0x01)
	deploy(t, ch, alice, &inert{addr: makeAddr(0x0B)})
	require.NoError(t, ch.Mint(alice, big.NewInt(1)))

	_, err := ch.Transfer(context.Background(), alice, makeAddr(0x0B), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestSendValue_CallDepth(t *testing.T) {
	ch := New()
	r := &recorder{addr: makeAddr(0x0C)}
	r.onReceive = func(c *Frame, amount *big.Int) error {
		return c.SendValue(r.addr, amount)
	}
	deploy(t, ch, makeAddr(1), r)

	_, err := ch.Transfer(context.Background(), makeAddr(1), r.addr, big.NewInt(0))
	assert.ErrorIs(t, err, ErrCallDepth)
}

func TestDeploy_AddressInUse(t *testing.T) {
	ch := New()
	deploy(t, ch, makeAddr(1), &inert{addr: makeAddr(0x0B)})
	_, err := ch.Execute(context.Background(), makeAddr(1), func(f *Frame) error {
		return f.Deploy(&inert{addr: makeAddr(0x0B)})
	})
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestNewAddress_DeterministicAndJournaled(t *testing.T) {
	ch := New()
	deployer := makeAddr(0x01)
	var first, second, afterRevert ledger.Address

	_, err := ch.Execute(context.Background(), deployer, func(f *Frame) error {
		first = f.NewAddress()
		second = f.NewAddress()
		return nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.False(t, first.IsZero())

	_, err = ch.Execute(context.Background(), deployer, func(f *Frame) error {
		f.NewAddress()
		return errors.New("undo")
	})
	require.Error(t, err)

	_, err = ch.Execute(context.Background(), deployer, func(f *Frame) error {
		afterRevert = f.NewAddress()
		return nil
	})
	require.NoError(t, err)

	// A second chain replaying the same committed history yields the same addresses.
	other := New()
	var replay [3]ledger.Address
	_, err = other.Execute(context.Background(), deployer, func(f *Frame) error {
		for i := range replay {
			replay[i] = f.NewAddress()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Address{first, second, afterRevert}, replay[:])
}

// --- Events ---

func TestEvent_SignatureAndTopic(t *testing.T) {
	assert.Equal(t, "Transfer(address,address,uint256)", TransferEvent.Signature())
	assert.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		TransferEvent.Topic().String())
}

func TestEmit_EncodesWords(t *testing.T) {
	ch := New()
	from, to := makeAddr(0x11), makeAddr(0x22)

	rcpt, err := ch.Execute(context.Background(), from, func(f *Frame) error {
		return f.Emit(TransferEvent, from, to, big.NewInt(258))
	})
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)

	l := rcpt.Logs[0]
	assert.Equal(t, from, l.Address)
	assert.Equal(t, TransferEvent.Topic(), l.Topics[0])
	require.Len(t, l.Data, 96)
	assert.Equal(t, from[:], l.Data[12:32])
	assert.Equal(t, to[:], l.Data[44:64])
	assert.Equal(t, []byte{0x01, 0x02}, l.Data[94:96])
	assert.Equal(t, to, l.AddressArg("to"))
	assertAmount(t, big.NewInt(258), l.AmountArg("value"))
	assert.Nil(t, l.Arg("missing"))

	assert.Len(t, rcpt.LogsFrom(from), 1)
	assert.Empty(t, rcpt.LogsFrom(to))
	require.Len(t, ch.History(), 1)
	assert.Equal(t, uint64(0), ch.History()[0].Index)
}

func TestEmit_ArgumentMismatch(t *testing.T) {
	ch := New()
	tests := []struct {
		name string
		args []interface{}
	}{
		{"too few", []interface{}{makeAddr(1)}},
		{"wrong address type", []interface{}{"0x01", makeAddr(2), big.NewInt(1)}},
		{"wrong amount type", []interface{}{makeAddr(1), makeAddr(2), 1}},
		{"negative amount", []interface{}{makeAddr(1), makeAddr(2), big.NewInt(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ch.Execute(context.Background(), makeAddr(1), func(f *Frame) error {
				return f.Emit(TransferEvent, tt.args...)
			})
			assert.ErrorIs(t, err, ErrEventArgs)
		})
	}
}

func TestNewEvent_UnsupportedTypePanics(t *testing.T) {
	assert.Panics(t, func() { NewEvent("Bad", Param{Name: "x", Type: "string"}) })
}

func assertAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	assert.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
}
