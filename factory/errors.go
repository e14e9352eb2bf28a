package factory

import (
	"errors"

	"github.com/bitfsorg/libsplit-go/registry"
)

var (
	// ErrIndexOutOfRange indicates an index past the end of an actor's instantiation list.
	ErrIndexOutOfRange = registry.ErrIndexOutOfRange

	// ErrNilStore indicates the factory was built without a registry store.
	ErrNilStore = errors.New("factory: registry store is nil")

	// ErrUnknownInstance indicates an address not created by this factory.
	ErrUnknownInstance = errors.New("factory: unknown instance")

	// ErrRegistryWrite indicates the registry rejected the instantiation record.
	ErrRegistryWrite = errors.New("factory: registry write failed")
)
