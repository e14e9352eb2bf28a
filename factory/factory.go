// Package factory creates distributor instances and keeps the registry of
// which instances every participant is associated with.
package factory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bitfsorg/libsplit-go/chain"
	"github.com/bitfsorg/libsplit-go/ledger"
	"github.com/bitfsorg/libsplit-go/metrics"
	"github.com/bitfsorg/libsplit-go/registry"
	"github.com/bitfsorg/libsplit-go/split"
)

// InstantiationEvent announces a new instance to one actor.
var InstantiationEvent = chain.NewEvent("LogSplitPaymentInstantiation",
	chain.Param{Name: "actor", Type: chain.TypeAddress},
	chain.Param{Name: "instantiation", Type: chain.TypeAddress},
)

// OpCreate is the operation name used for failure metrics.
const OpCreate = "create"

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the factory logger. Created distributors inherit it.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder. Created distributors inherit it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// WithDistributorOptions appends options applied to every created distributor.
func WithDistributorOptions(opts ...split.Option) Option {
	return func(f *Factory) { f.splitOpts = append(f.splitOpts, opts...) }
}

// Factory is a deployed contract creating distributors on request.
type Factory struct {
	addr  ledger.Address
	chain *chain.Chain
	store registry.Store

	splitOpts []split.Option
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu      sync.RWMutex // guards pending
	pending *pendingBatch
}

// New deploys a factory from the frame's Self. Registry writes go to store.
func New(c *chain.Frame, store registry.Store, opts ...Option) (*Factory, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	f := &Factory{
		chain:  c.Chain(),
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.addr = c.NewAddress()
	if err := c.Deploy(f); err != nil {
		return nil, err
	}
	f.logger = f.logger.With(zap.Stringer("factory", f.addr))
	return f, nil
}

// Deploy creates a factory in its own transaction sent by deployer.
func Deploy(ctx context.Context, ch *chain.Chain, deployer ledger.Address, store registry.Store, opts ...Option) (*Factory, error) {
	var f *Factory
	_, err := ch.Execute(ctx, deployer, func(fr *chain.Frame) error {
		var err error
		f, err = New(fr, store, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Address returns the factory contract address.
func (f *Factory) Address() ledger.Address { return f.addr }

// Create deploys a distributor on behalf of the frame's Self (the creator).
// It emits one instantiation event per distinct receiver in share order and
// a final one for the creator. The new instance is visible to the read
// methods at once; all registry entries of the transaction are written in
// one batch when it commits, and a failing write reverts it.
func (f *Factory) Create(c *chain.Frame, token ledger.Address, receivers []ledger.Address, percentages []uint8) (ledger.Address, error) {
	var inst ledger.Address
	err := c.Call(f.addr, func(fc *chain.Frame) error {
		creator := fc.Caller()

		opts := append([]split.Option{
			split.WithLogger(f.logger),
			split.WithMetrics(f.metrics),
		}, f.splitOpts...)
		d, err := split.New(fc, token, receivers, percentages, opts...)
		if err != nil {
			f.metrics.ObserveFailure(OpCreate, split.Reason(err))
			return err
		}
		inst = d.Address()

		actors := registry.Distinct(receivers)
		for _, r := range actors {
			if err := fc.Emit(InstantiationEvent, r, inst); err != nil {
				return err
			}
		}
		if err := fc.Emit(InstantiationEvent, creator, inst); err != nil {
			return err
		}

		f.stage(fc, created{
			entry: registry.Entry{
				Instance:     inst,
				Participants: registry.Distinct(append(actors, creator)),
			},
			creator:   creator,
			receivers: len(receivers),
		})
		return nil
	})
	if err != nil {
		return ledger.ZeroAddress, err
	}
	return inst, nil
}

// Instantiate runs Create in its own transaction sent by creator and returns
// the new instance together with the receipt.
func (f *Factory) Instantiate(ctx context.Context, creator, token ledger.Address, receivers []ledger.Address, percentages []uint8) (ledger.Address, *chain.Receipt, error) {
	var inst ledger.Address
	rcpt, err := f.chain.Execute(ctx, creator, func(c *chain.Frame) error {
		var err error
		inst, err = f.Create(c, token, receivers, percentages)
		return err
	})
	if err != nil {
		return ledger.ZeroAddress, nil, err
	}
	return inst, rcpt, nil
}

// IsInstantiation reports whether addr was created by this factory.
func (f *Factory) IsInstantiation(ctx context.Context, addr ledger.Address) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.pending != nil {
		if _, ok := f.pending.instances[addr]; ok {
			return true, nil
		}
	}
	return f.store.IsInstance(ctx, addr)
}

// InstantiationsCount returns how many instances actor is associated with.
func (f *Factory) InstantiationsCount(ctx context.Context, actor ledger.Address) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, err := f.store.Count(ctx, actor)
	if err != nil {
		return 0, err
	}
	return n + uint64(len(f.pendingList(actor))), nil
}

// InstantiationAt returns actor's index-th instance in creation order.
func (f *Factory) InstantiationAt(ctx context.Context, actor ledger.Address, index uint64) (ledger.Address, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, err := f.store.Count(ctx, actor)
	if err != nil {
		return ledger.ZeroAddress, err
	}
	if index < n {
		return f.store.At(ctx, actor, index)
	}
	staged := f.pendingList(actor)
	if index-n < uint64(len(staged)) {
		return staged[index-n], nil
	}
	return ledger.ZeroAddress, registry.OutOfRange(actor, index, n+uint64(len(staged)))
}

// Instantiations returns all of actor's instances in creation order.
func (f *Factory) Instantiations(ctx context.Context, actor ledger.Address) ([]ledger.Address, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	list, err := f.store.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	return append(list, f.pendingList(actor)...), nil
}

// pendingList returns actor's staged instances. Callers hold f.mu.
func (f *Factory) pendingList(actor ledger.Address) []ledger.Address {
	if f.pending == nil {
		return nil
	}
	return f.pending.lists[actor]
}

// Distributor resolves an instance created by this factory.
func (f *Factory) Distributor(ctx context.Context, addr ledger.Address) (*split.Distributor, error) {
	ok, err := f.IsInstantiation(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, addr)
	}
	ct, found := f.chain.Contract(addr)
	if !found {
		return nil, fmt.Errorf("%w: %s not deployed", ErrUnknownInstance, addr)
	}
	d, isDist := ct.(*split.Distributor)
	if !isDist {
		return nil, fmt.Errorf("%w: %s is not a distributor", ErrUnknownInstance, addr)
	}
	return d, nil
}
