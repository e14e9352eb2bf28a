// Package split implements the SplitPayment distributor: a deployed instance
// with a fixed set of receivers and percentages that forwards every
// native-currency payment it receives, and on request its whole balance of
// one configured token, proportionally to those receivers.
package split

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/bitfsorg/libsplit-go/chain"
	"github.com/bitfsorg/libsplit-go/ledger"
	"github.com/bitfsorg/libsplit-go/metrics"
)

// Events emitted by a distributor.
var (
	ReceivedEvent = chain.NewEvent("LogReceivedEth",
		chain.Param{Name: "sender", Type: chain.TypeAddress},
		chain.Param{Name: "amount", Type: chain.TypeUint256},
	)
	NativeSplitEvent = chain.NewEvent("LogSplitPaymentEth",
		chain.Param{Name: "receiver", Type: chain.TypeAddress},
		chain.Param{Name: "amount", Type: chain.TypeUint256},
	)
	TokenSplitEvent = chain.NewEvent("LogSplitPaymentERC20",
		chain.Param{Name: "receiver", Type: chain.TypeAddress},
		chain.Param{Name: "amount", Type: chain.TypeUint256},
	)
)

// Operation names used for failure metrics.
const (
	OpReceive      = "receive"
	OpExecuteSplit = "execute_split"
)

// Option configures a Distributor.
type Option func(*Distributor)

// WithLogger sets the distributor logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Distributor) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Distributor) { d.metrics = m }
}

// Distributor is one deployed split-payment instance. Its configuration is
// fixed at construction.
type Distributor struct {
	addr  ledger.Address
	cfg   SplitConfig
	chain *chain.Chain

	// busy is set while a distribution is in progress. Transactions are
	// serialized by the chain, so no lock is needed.
	busy bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Compile-time interface check.
var _ chain.Payable = (*Distributor)(nil)

// New validates the configuration and deploys a distributor at a fresh
// address derived from the frame. The deployment is undone if the enclosing
// transaction fails.
func New(c *chain.Frame, token ledger.Address, receivers []ledger.Address, percentages []uint8, opts ...Option) (*Distributor, error) {
	shares, err := Validate(token, receivers, percentages)
	if err != nil {
		return nil, err
	}

	d := &Distributor{
		cfg:    SplitConfig{Token: token, Shares: shares},
		chain:  c.Chain(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.addr = c.NewAddress()
	if err := c.Deploy(d); err != nil {
		return nil, err
	}
	d.logger = d.logger.With(zap.Stringer("distributor", d.addr))
	return d, nil
}

// Deploy creates a distributor in its own transaction sent by deployer.
func Deploy(ctx context.Context, ch *chain.Chain, deployer, token ledger.Address, receivers []ledger.Address, percentages []uint8, opts ...Option) (*Distributor, error) {
	var d *Distributor
	_, err := ch.Execute(ctx, deployer, func(f *chain.Frame) error {
		var err error
		d, err = New(f, token, receivers, percentages, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Address returns the instance address.
func (d *Distributor) Address() ledger.Address { return d.addr }

// Token returns the configured token ledger address.
func (d *Distributor) Token() ledger.Address { return d.cfg.Token }

// Len returns the number of shares.
func (d *Distributor) Len() int { return len(d.cfg.Shares) }

// Receiver returns the receiver of share i.
func (d *Distributor) Receiver(i int) (ledger.Address, error) {
	if i < 0 || i >= len(d.cfg.Shares) {
		return ledger.ZeroAddress, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return d.cfg.Shares[i].Receiver, nil
}

// Percentage returns the percentage of share i.
func (d *Distributor) Percentage(i int) (uint8, error) {
	if i < 0 || i >= len(d.cfg.Shares) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return d.cfg.Shares[i].Percentage, nil
}

// Shares returns a copy of the configured shares.
func (d *Distributor) Shares() []Share {
	out := make([]Share, len(d.cfg.Shares))
	copy(out, d.cfg.Shares)
	return out
}

// Config returns a copy of the instance configuration.
func (d *Distributor) Config() SplitConfig {
	return SplitConfig{Token: d.cfg.Token, Shares: d.Shares()}
}

func (d *Distributor) enter() error {
	if d.busy {
		return ErrReentrantCall
	}
	d.busy = true
	return nil
}

func (d *Distributor) exit() { d.busy = false }

func (d *Distributor) fail(op string, err error) error {
	d.metrics.ObserveFailure(op, Reason(err))
	d.logger.Debug("distribution failed", zap.String("op", op), zap.Error(err))
	return err
}

// Receive splits an incoming native-currency payment among the receivers.
// It runs whenever value is sent to the instance; c.Caller() is the sender.
// The integer-division remainder stays on the instance.
func (d *Distributor) Receive(c *chain.Frame, amount *big.Int) error {
	if err := d.enter(); err != nil {
		return d.fail(OpReceive, err)
	}
	defer d.exit()

	if amount == nil || amount.Sign() == 0 {
		return d.fail(OpReceive, ErrZeroNumber)
	}
	portions, err := Portions(amount, d.cfg.Shares)
	if err != nil {
		return d.fail(OpReceive, err)
	}
	if err := c.Emit(ReceivedEvent, c.Caller(), ledger.Copy(amount)); err != nil {
		return err
	}
	for _, p := range portions {
		if err := c.SendValue(p.Receiver, p.Amount); err != nil {
			return fmt.Errorf("send to %s: %w", p.Receiver, err)
		}
		if err := c.Emit(NativeSplitEvent, p.Receiver, p.Amount); err != nil {
			return err
		}
	}

	d.onCommit(c, metrics.AssetNative, amount, portions)
	return nil
}

// ExecuteSplit distributes the instance's whole current token balance among
// the receivers. c is the caller's frame; the token sees the instance as
// sender. The signature matches chain.Execute so it can run as a transaction
// body directly.
func (d *Distributor) ExecuteSplit(c *chain.Frame) error {
	return c.Call(d.addr, func(df *chain.Frame) error {
		if err := d.enter(); err != nil {
			return d.fail(OpExecuteSplit, err)
		}
		defer d.exit()

		tok, err := d.token()
		if err != nil {
			return d.fail(OpExecuteSplit, err)
		}
		balance := tok.BalanceOf(d.addr)
		if balance.Sign() == 0 {
			return d.fail(OpExecuteSplit, ErrNoFunds)
		}
		portions, err := Portions(balance, d.cfg.Shares)
		if err != nil {
			return d.fail(OpExecuteSplit, err)
		}
		for _, p := range portions {
			if err := tok.Transfer(df, p.Receiver, p.Amount); err != nil {
				return fmt.Errorf("token transfer to %s: %w", p.Receiver, err)
			}
			if err := df.Emit(TokenSplitEvent, p.Receiver, p.Amount); err != nil {
				return err
			}
		}

		d.onCommit(df, metrics.AssetToken, balance, portions)
		return nil
	})
}

// onCommit defers logging and metrics until the transaction commits so
// reverted distributions are never reported.
func (d *Distributor) onCommit(c *chain.Frame, asset string, total *big.Int, portions []Distribution) {
	residual := Remainder(total, portions)
	paid := new(big.Int).Sub(total, residual)
	c.OnCommit(func(context.Context) error {
		d.metrics.ObserveDistribution(asset, paid, residual)
		d.logger.Debug("distribution committed",
			zap.String("asset", asset),
			zap.Stringer("total", total),
			zap.Stringer("residual", residual),
			zap.Int("receivers", len(portions)),
		)
		return nil
	})
}

func (d *Distributor) token() (chain.Token, error) {
	ct, ok := d.chain.Contract(d.cfg.Token)
	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", ErrTokenUnavailable, d.cfg.Token)
	}
	tok, ok := ct.(chain.Token)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a token", ErrTokenUnavailable, d.cfg.Token)
	}
	return tok, nil
}

// TokenBalance returns the instance's current balance of the configured token.
func (d *Distributor) TokenBalance() (*big.Int, error) {
	tok, err := d.token()
	if err != nil {
		return nil, err
	}
	return tok.BalanceOf(d.addr), nil
}

// PreviewAll reports, for every share, what ExecuteSplit would transfer given
// the current token balance. Amounts are zero when the balance is zero.
func (d *Distributor) PreviewAll() (Details, error) {
	balance, err := d.TokenBalance()
	if err != nil {
		return Details{}, err
	}
	portions, err := Portions(balance, d.cfg.Shares)
	if err != nil {
		return Details{}, err
	}

	details := Details{
		Receivers:   d.cfg.Receivers(),
		Percentages: d.cfg.Percentages(),
		Amounts:     make([]*big.Int, len(portions)),
	}
	for i, p := range portions {
		details.Amounts[i] = p.Amount
	}
	return details, nil
}

// PreviewFor reports the first share whose receiver is addr. Unknown
// addresses yield the zero triple.
func (d *Distributor) PreviewFor(addr ledger.Address) (ShareDetails, error) {
	_, share := d.cfg.FindShare(addr)
	if share == nil {
		return ShareDetails{Amount: new(big.Int)}, nil
	}
	balance, err := d.TokenBalance()
	if err != nil {
		return ShareDetails{}, err
	}
	portions, err := Portions(balance, []Share{*share})
	if err != nil {
		return ShareDetails{}, err
	}
	return ShareDetails{
		Receiver:   share.Receiver,
		Percentage: share.Percentage,
		Amount:     portions[0].Amount,
	}, nil
}
