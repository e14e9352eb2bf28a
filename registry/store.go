// Package registry persists which distributor instances each participant
// (creator or receiver) is associated with, in creation order.
package registry

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// Store is the participant → instances index. Lists are append-only.
type Store interface {
	// Record registers instance and appends it to the list of every distinct
	// participant, in the given order. The write is all-or-nothing.
	Record(ctx context.Context, instance ledger.Address, participants []ledger.Address) error

	// RecordBatch records every entry in one all-or-nothing write. An entry
	// whose instance is already stored, or repeated within the batch, fails
	// the whole batch with ErrDuplicateInstance.
	RecordBatch(ctx context.Context, entries []Entry) error

	// IsInstance reports whether addr was recorded as an instance.
	IsInstance(ctx context.Context, addr ledger.Address) (bool, error)

	// Count returns the length of participant's list.
	Count(ctx context.Context, participant ledger.Address) (uint64, error)

	// At returns the index-th instance of participant's list.
	At(ctx context.Context, participant ledger.Address, index uint64) (ledger.Address, error)

	// List returns participant's whole list in insertion order.
	List(ctx context.Context, participant ledger.Address) ([]ledger.Address, error)

	// Close releases the backend.
	Close() error
}

// Entry is one instance together with the participants it is listed under.
type Entry struct {
	Instance     ledger.Address
	Participants []ledger.Address
}

// Distinct returns addrs without repeats, keeping first occurrences in order.
func Distinct(addrs []ledger.Address) []ledger.Address {
	seen := make(map[ledger.Address]struct{}, len(addrs))
	out := make([]ledger.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// checkRecord validates Record arguments and returns the distinct participants.
func checkRecord(instance ledger.Address, participants []ledger.Address) ([]ledger.Address, error) {
	if instance.IsZero() {
		return nil, ErrInvalidInstance
	}
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	return Distinct(participants), nil
}

// checkBatch validates every entry and deduplicates its participants.
func checkBatch(entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	out := make([]Entry, 0, len(entries))
	seen := make(map[ledger.Address]struct{}, len(entries))
	for _, e := range entries {
		distinct, err := checkRecord(e.Instance, e.Participants)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[e.Instance]; dup {
			return nil, fmt.Errorf("%w: %s repeated in batch", ErrDuplicateInstance, e.Instance)
		}
		seen[e.Instance] = struct{}{}
		out = append(out, Entry{Instance: e.Instance, Participants: distinct})
	}
	return out, nil
}

// OutOfRange builds the ErrIndexOutOfRange error for participant's list of
// count entries.
func OutOfRange(participant ledger.Address, index, count uint64) error {
	return outOfRange(participant, index, count)
}

func outOfRange(participant ledger.Address, index, count uint64) error {
	return fmt.Errorf("%w: %s has %d instances, index %d", ErrIndexOutOfRange, participant, count, index)
}
