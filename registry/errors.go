package registry

import "errors"

var (
	// ErrDuplicateInstance indicates the instance was already recorded.
	ErrDuplicateInstance = errors.New("registry: duplicate instance")

	// ErrIndexOutOfRange indicates an index past the end of a participant's list.
	ErrIndexOutOfRange = errors.New("registry: index out of range")

	// ErrNoParticipants indicates a record without participants.
	ErrNoParticipants = errors.New("registry: no participants")

	// ErrNoEntries indicates an empty batch.
	ErrNoEntries = errors.New("registry: empty batch")

	// ErrInvalidInstance indicates the zero address was given as instance.
	ErrInvalidInstance = errors.New("registry: invalid instance address")

	// ErrCorruptEntry indicates a stored value could not be decoded.
	ErrCorruptEntry = errors.New("registry: corrupt entry")
)
