package level

import "errors"

var (
	ErrNotFound         = errors.New("level: not found")
	ErrNotImplemented   = errors.New("level: not implemented")
	ErrLocationRequired = errors.New("level: constructor requires a location")
	ErrNoFactory        = errors.New("level: no idb factory configured")
	ErrNotOpen          = errors.New("level: store is not open")
	ErrInvalidKey       = errors.New("level: key cannot be empty")
	ErrInvalidValue     = errors.New("level: value cannot be nil")
	ErrInvalidOp        = errors.New("level: unknown batch operation")

	// ErrEnd is returned by Iterator.Next once the range is exhausted.
	ErrEnd            = errors.New("level: end of iteration")
	ErrIteratorClosed = errors.New("level: iterator is closed")
	ErrConcurrentNext = errors.New("level: concurrent call to Next")
)
