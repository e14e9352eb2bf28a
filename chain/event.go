package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// Supported event parameter types.
const (
	TypeAddress = "address"
	TypeUint256 = "uint256"
)

// wordSize is the width of one encoded log data word.
const wordSize = 32

// Hash is a 32-byte Keccak-256 digest.
type Hash [32]byte

// String returns the 0x-prefixed hex form.
func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// Keccak256 hashes data with the legacy (pre-standard) Keccak-256 padding.
func Keccak256(data ...[]byte) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}

// Param is a named, typed event input.
type Param struct {
	Name string
	Type string
}

// Event describes the shape of a log entry. Field order is part of the
// wire contract for downstream observers.
type Event struct {
	Name   string
	Inputs []Param
}

// NewEvent declares an event. It panics on unsupported parameter types so
// that malformed declarations fail at package init.
func NewEvent(name string, inputs ...Param) *Event {
	for _, in := range inputs {
		if in.Type != TypeAddress && in.Type != TypeUint256 {
			panic(fmt.Sprintf("chain: unsupported event param type %q", in.Type))
		}
	}
	return &Event{Name: name, Inputs: inputs}
}

// Signature returns the canonical signature, e.g. "Transfer(address,address,uint256)".
func (e *Event) Signature() string {
	types := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		types[i] = in.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

// Topic returns Keccak-256 of the signature, used as the first log topic.
func (e *Event) Topic() Hash { return Keccak256([]byte(e.Signature())) }

// Log is an emitted event.
type Log struct {
	Address ledger.Address // emitting contract
	Event   *Event
	Args    []interface{} // ordered as Event.Inputs
	Topics  []Hash
	Data    []byte // one 32-byte word per argument
	Index   uint64 // position in the chain history, set on commit
}

// Arg returns the argument named name, or nil.
func (l *Log) Arg(name string) interface{} {
	for i, in := range l.Event.Inputs {
		if in.Name == name {
			return l.Args[i]
		}
	}
	return nil
}

// AddressArg returns the address argument named name.
func (l *Log) AddressArg(name string) ledger.Address {
	a, _ := l.Arg(name).(ledger.Address)
	return a
}

// AmountArg returns the uint256 argument named name as a copy.
func (l *Log) AmountArg(name string) *big.Int {
	v, _ := l.Arg(name).(*big.Int)
	return ledger.Copy(v)
}

// newLog type-checks args against ev and encodes them.
func newLog(emitter ledger.Address, ev *Event, args []interface{}) (*Log, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: event", ErrNilParam)
	}
	if len(args) != len(ev.Inputs) {
		return nil, fmt.Errorf("%w: %s takes %d args, got %d", ErrEventArgs, ev.Name, len(ev.Inputs), len(args))
	}

	data := make([]byte, wordSize*len(args))
	stored := make([]interface{}, len(args))
	for i, in := range ev.Inputs {
		word := data[i*wordSize : (i+1)*wordSize]
		switch in.Type {
		case TypeAddress:
			a, ok := args[i].(ledger.Address)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s wants address, got %T", ErrEventArgs, ev.Name, in.Name, args[i])
			}
			copy(word[wordSize-ledger.AddressSize:], a[:])
			stored[i] = a
		case TypeUint256:
			v, ok := args[i].(*big.Int)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s wants uint256, got %T", ErrEventArgs, ev.Name, in.Name, args[i])
			}
			if err := ledger.CheckAmount(v); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrEventArgs, ev.Name, in.Name, err)
			}
			v.FillBytes(word)
			stored[i] = ledger.Copy(v)
		}
	}

	return &Log{
		Address: emitter,
		Event:   ev,
		Args:    stored,
		Topics:  []Hash{ev.Topic()},
		Data:    data,
	}, nil
}
