package ledger

import "errors"

var (
	// ErrInvalidAddress indicates an address string is not 20 hex-encoded bytes.
	ErrInvalidAddress = errors.New("ledger: invalid address")

	// ErrInvalidAmount indicates an amount is nil, negative or wider than 256 bits.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
)
