package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bitfsorg/libsplit-go/chain"
	"github.com/bitfsorg/libsplit-go/ledger"
	"github.com/bitfsorg/libsplit-go/registry"
)

// created is one successful Create waiting for its transaction to commit.
type created struct {
	entry     registry.Entry
	creator   ledger.Address
	receivers int
}

// pendingBatch holds the registry entries of the transaction in flight.
// Reads consult it before the store, so a Create is visible to the rest of
// its own transaction. It is flushed as a single RecordBatch at commit and
// dropped on revert.
type pendingBatch struct {
	creates   []created
	instances map[ledger.Address]struct{}
	lists     map[ledger.Address][]ledger.Address
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{
		instances: make(map[ledger.Address]struct{}),
		lists:     make(map[ledger.Address][]ledger.Address),
	}
}

func (b *pendingBatch) add(c created) {
	b.creates = append(b.creates, c)
	b.instances[c.entry.Instance] = struct{}{}
	for _, p := range c.entry.Participants {
		b.lists[p] = append(b.lists[p], c.entry.Instance)
	}
}

func (b *pendingBatch) entries() []registry.Entry {
	out := make([]registry.Entry, len(b.creates))
	for i, c := range b.creates {
		out[i] = c.entry
	}
	return out
}

// stage queues c for the transaction of frame fr. The first Create of a
// transaction registers the flush and the drop.
func (f *Factory) stage(fr *chain.Frame, c created) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == nil {
		f.pending = newPendingBatch()
		fr.OnRevert(f.dropPending)
		fr.OnCommit(f.flush)
	}
	f.pending.add(c)
}

func (f *Factory) dropPending() {
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
}

// flush writes every Create of the transaction in one store call. A failure
// reverts the transaction, which drops the batch.
func (f *Factory) flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.pending
	if b == nil {
		return nil
	}
	if err := f.store.RecordBatch(ctx, b.entries()); err != nil {
		return fmt.Errorf("%w: %w", ErrRegistryWrite, err)
	}
	f.pending = nil

	for _, c := range b.creates {
		f.metrics.ObserveInstantiation(len(c.entry.Participants))
		f.logger.Info("distributor created",
			zap.Stringer("instance", c.entry.Instance),
			zap.Stringer("creator", c.creator),
			zap.Int("receivers", c.receivers),
		)
	}
	return nil
}
