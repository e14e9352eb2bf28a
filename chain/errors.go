package chain

import "errors"

var (
	// ErrInsufficientBalance indicates a debit larger than the account balance.
	ErrInsufficientBalance = errors.New("chain: insufficient balance")

	// ErrNotPayable indicates native currency was sent to a contract without a receive hook.
	ErrNotPayable = errors.New("chain: contract cannot receive native currency")

	// ErrCallDepth indicates the nested call limit was exceeded.
	ErrCallDepth = errors.New("chain: max call depth exceeded")

	// ErrAddressInUse indicates a deployment targeted an occupied address.
	ErrAddressInUse = errors.New("chain: address already in use")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("chain: nil parameter")

	// ErrEventArgs indicates event arguments do not match the event inputs.
	ErrEventArgs = errors.New("chain: event arguments mismatch")

	// ErrNotMinter indicates a mint attempt by an account other than the token minter.
	ErrNotMinter = errors.New("chain: caller is not the token minter")

	// ErrTxClosed indicates a frame was used after its transaction finished.
	ErrTxClosed = errors.New("chain: transaction already finished")
)
