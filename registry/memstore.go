package registry

import (
	"context"
	"sync"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// MemStore is an in-memory Store.
type MemStore struct {
	mu        sync.RWMutex
	instances map[ledger.Address]struct{}
	lists     map[ledger.Address][]ledger.Address
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		instances: make(map[ledger.Address]struct{}),
		lists:     make(map[ledger.Address][]ledger.Address),
	}
}

// Record registers instance for each distinct participant.
func (s *MemStore) Record(ctx context.Context, instance ledger.Address, participants []ledger.Address) error {
	return s.RecordBatch(ctx, []Entry{{Instance: instance, Participants: participants}})
}

// RecordBatch checks every entry before applying any of them.
func (s *MemStore) RecordBatch(_ context.Context, entries []Entry) error {
	batch, err := checkBatch(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range batch {
		if _, exists := s.instances[e.Instance]; exists {
			return ErrDuplicateInstance
		}
	}
	for _, e := range batch {
		s.instances[e.Instance] = struct{}{}
		for _, p := range e.Participants {
			s.lists[p] = append(s.lists[p], e.Instance)
		}
	}
	return nil
}

// IsInstance reports whether addr was recorded.
func (s *MemStore) IsInstance(_ context.Context, addr ledger.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.instances[addr]
	return ok, nil
}

// Count returns the number of instances recorded for participant.
func (s *MemStore) Count(_ context.Context, participant ledger.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.lists[participant])), nil
}

// At returns the index-th instance of participant.
func (s *MemStore) At(_ context.Context, participant ledger.Address, index uint64) (ledger.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.lists[participant]
	if index >= uint64(len(list)) {
		return ledger.ZeroAddress, outOfRange(participant, index, uint64(len(list)))
	}
	return list[index], nil
}

// List returns a copy of participant's instances.
func (s *MemStore) List(_ context.Context, participant ledger.Address) ([]ledger.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.lists[participant]
	out := make([]ledger.Address, len(list))
	copy(out, list)
	return out, nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
