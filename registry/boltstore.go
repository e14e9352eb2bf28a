package registry

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libsplit-go/ledger"
)

var (
	bucketInstances = []byte("instances")
	bucketCounts    = []byte("counts")
	bucketEntries   = []byte("entries")
)

// BoltStore is a Store backed by a bbolt database. Each participant's list is
// kept under composite keys participant || bigEndian(index) so that index
// lookups are direct and a prefix scan yields the list in order.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("registry: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketInstances, bucketCounts, bucketEntries} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("registry: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// entryKey encodes participant || bigEndian(index).
func entryKey(participant ledger.Address, index uint64) []byte {
	k := make([]byte, ledger.AddressSize+8)
	copy(k, participant[:])
	binary.BigEndian.PutUint64(k[ledger.AddressSize:], index)
	return k
}

func readCount(b *bbolt.Bucket, participant ledger.Address) (uint64, error) {
	v := b.Get(participant[:])
	if v == nil {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: count for %s has %d bytes", ErrCorruptEntry, participant, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func decodeAddress(v []byte) (ledger.Address, error) {
	if len(v) != ledger.AddressSize {
		return ledger.ZeroAddress, fmt.Errorf("%w: address has %d bytes", ErrCorruptEntry, len(v))
	}
	var a ledger.Address
	copy(a[:], v)
	return a, nil
}

// Record registers instance and appends it to every distinct participant's
// list in a single bbolt transaction.
func (s *BoltStore) Record(ctx context.Context, instance ledger.Address, participants []ledger.Address) error {
	return s.RecordBatch(ctx, []Entry{{Instance: instance, Participants: participants}})
}

// RecordBatch writes all entries in one bbolt transaction.
func (s *BoltStore) RecordBatch(_ context.Context, entries []Entry) error {
	batch, err := checkBatch(entries)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		ib := tx.Bucket(bucketInstances)
		cb := tx.Bucket(bucketCounts)
		eb := tx.Bucket(bucketEntries)

		for _, e := range batch {
			instance := e.Instance
			if ib.Get(instance[:]) != nil {
				return ErrDuplicateInstance
			}
			if err := ib.Put(instance[:], []byte{}); err != nil {
				return fmt.Errorf("registry: put instance: %w", err)
			}

			for _, p := range e.Participants {
				n, err := readCount(cb, p)
				if err != nil {
					return err
				}
				if err := eb.Put(entryKey(p, n), instance[:]); err != nil {
					return fmt.Errorf("registry: put entry: %w", err)
				}
				var next [8]byte
				binary.BigEndian.PutUint64(next[:], n+1)
				if err := cb.Put(p[:], next[:]); err != nil {
					return fmt.Errorf("registry: put count: %w", err)
				}
			}
		}
		return nil
	})
}

// IsInstance reports whether addr was recorded.
func (s *BoltStore) IsInstance(_ context.Context, addr ledger.Address) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketInstances).Get(addr[:]) != nil
		return nil
	})
	return found, err
}

// Count returns the number of instances recorded for participant.
func (s *BoltStore) Count(_ context.Context, participant ledger.Address) (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		n, err = readCount(tx.Bucket(bucketCounts), participant)
		return err
	})
	return n, err
}

// At returns the index-th instance of participant.
func (s *BoltStore) At(_ context.Context, participant ledger.Address, index uint64) (ledger.Address, error) {
	var addr ledger.Address
	err := s.db.View(func(tx *bbolt.Tx) error {
		n, err := readCount(tx.Bucket(bucketCounts), participant)
		if err != nil {
			return err
		}
		if index >= n {
			return outOfRange(participant, index, n)
		}
		v := tx.Bucket(bucketEntries).Get(entryKey(participant, index))
		if v == nil {
			return fmt.Errorf("%w: missing entry %d for %s", ErrCorruptEntry, index, participant)
		}
		addr, err = decodeAddress(v)
		return err
	})
	if err != nil {
		return ledger.ZeroAddress, err
	}
	return addr, nil
}

// List returns participant's instances in insertion order.
func (s *BoltStore) List(_ context.Context, participant ledger.Address) ([]ledger.Address, error) {
	out := []ledger.Address{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := participant[:]
		c := tx.Bucket(bucketEntries).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			a, err := decodeAddress(v)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: list entries: %w", err)
	}
	return out, nil
}
