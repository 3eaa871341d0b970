package kv

import (
	"context"
	"errors"
	"iter"

	"github.com/aep/cursorkv/logging"
)

var log = logging.New()

var (
	ErrNotFound  = errors.New("kv: key not found")
	ErrClosed    = errors.New("kv: engine closed")
	ErrCommitted = errors.New("kv: already committed")
)

type KeyAndValue struct {
	K []byte
	V []byte
}

// KV is an ordered, byte-compared key value engine with snapshot reads and
// atomic write transactions.
type KV interface {
	Close()
	Write() Write
	Read() Read
	Ping() error
}

// Read is a consistent view. Get returns ErrNotFound for a missing key.
// Iter walks [start, end) in ascending byte order; a nil bound is open.
type Read interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error]
	Close()
}

// Write buffers mutations until Commit. Reads through a Write observe its own
// pending mutations.
type Write interface {
	Read
	Put(key []byte, value []byte) error
	Del(key []byte) error
	Commit(ctx context.Context) error
	Rollback() error
}

// Opener manages named databases of one engine kind.
type Opener interface {
	Open(name string) (KV, error)
	Destroy(name string) error
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
