// Package ledger defines the value types shared by the execution environment,
// the distributors and the instantiation registry: 20-byte account addresses
// and unsigned 256-bit amounts.
package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the length of an account address in bytes.
const AddressSize = 20

// Address identifies an account, a contract or a token ledger.
type Address [AddressSize]byte

// ZeroAddress is the all-zero address. It never identifies a valid party.
var ZeroAddress Address

// AddressFromHash builds an Address from a 20-byte hash (e.g. Hash160 output).
func AddressFromHash(h []byte) (Address, error) {
	var a Address
	if len(h) != AddressSize {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressSize, len(h))
	}
	copy(a[:], h)
	return a, nil
}

// ParseAddress decodes a hex address with or without the 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return AddressFromHash(raw)
}

// MustParseAddress is like ParseAddress but panics on malformed input.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// String returns the 0x-prefixed lowercase hex form.
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int { return bytes.Compare(a[:], b[:]) }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
