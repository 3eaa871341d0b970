package idb

import (
	"bytes"
	"context"
	"errors"
	"iter"

	"github.com/aep/cursorkv/kv"
)

// Request is a pending operation. Exactly one of its handlers is called per
// execution; a cursor request executes again on every Continue.
type Request struct {
	tx     *Transaction
	op     string
	exec   func() (any, error)
	result any
	err    error
	done   bool

	onSuccess func(r *Request)
	onError   func(err error)
}

func (r *Request) OnSuccess(fn func(r *Request)) { r.onSuccess = fn }
func (r *Request) OnError(fn func(err error))    { r.onError = fn }

// Result is the value of a get (nil when the key does not exist), or the
// cursor of a cursor request (nil once exhausted).
func (r *Request) Result() any { return r.result }

func (r *Request) Err() error { return r.err }

func (r *Request) Done() bool { return r.done }

func (r *Request) Transaction() *Transaction { return r.tx }

// Cursor returns the current cursor of a cursor request, or nil.
func (r *Request) Cursor() *Cursor {
	c, _ := r.result.(*Cursor)
	return c
}

// ObjectStore is a named key space inside a transaction.
type ObjectStore struct {
	tx     *Transaction
	name   string
	prefix []byte
}

func storePrefix(name string) []byte {
	return []byte("s\xff" + name + "\xff")
}

// storeEnd is the smallest key above every key starting with prefix.
func storeEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (s *ObjectStore) Name() string { return s.name }

func (s *ObjectStore) key(k []byte) []byte {
	return append(bytes.Clone(s.prefix), k...)
}

func (s *ObjectStore) request(op string, exec func() (any, error)) (*Request, error) {
	req := &Request{tx: s.tx, op: op, exec: exec}
	if err := s.tx.enqueue(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *ObjectStore) Get(key []byte) (*Request, error) {
	k := s.key(key)
	return s.request("get", func() (any, error) {
		b, err := s.tx.view().Get(context.Background(), k)
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return deserializeValue(b)
	})
}

// Put stores value under key. value is []byte, string or anything json can
// encode; nil is rejected with ErrData.
func (s *ObjectStore) Put(key []byte, value any) (*Request, error) {
	if s.tx.mode != ReadWrite {
		return nil, ErrReadOnly
	}
	b, err := serializeValue(value)
	if err != nil {
		return nil, err
	}
	k := s.key(key)
	return s.request("put", func() (any, error) {
		return nil, s.tx.w.Put(k, b)
	})
}

func (s *ObjectStore) Delete(key []byte) (*Request, error) {
	if s.tx.mode != ReadWrite {
		return nil, ErrReadOnly
	}
	k := s.key(key)
	return s.request("delete", func() (any, error) {
		return nil, s.tx.w.Del(k)
	})
}

// OpenCursor walks the keys in r in ascending order. A nil range covers the
// whole store.
func (s *ObjectStore) OpenCursor(r *KeyRange) (*Request, error) {
	c := &Cursor{store: s, rng: r}
	req, err := s.request("openCursor", c.advance)
	if err != nil {
		return nil, err
	}
	c.req = req
	return req, nil
}

// Cursor is a position in an object store.
type Cursor struct {
	store *ObjectStore
	rng   *KeyRange
	req   *Request

	next      func() (kv.KeyAndValue, error, bool)
	pending   bool
	exhausted bool

	key   []byte
	value any
}

func (c *Cursor) Key() []byte { return c.key }
func (c *Cursor) Value() any  { return c.value }

// Continue advances the cursor. The success handler of the cursor request is
// called again with the next position, or with a nil cursor at the end.
func (c *Cursor) Continue() error {
	if c.store.tx.state != txActive {
		return ErrInactive
	}
	if c.pending || c.exhausted {
		return ErrInvalidState
	}
	c.pending = true
	return c.store.tx.enqueue(c.req)
}

func (c *Cursor) advance() (any, error) {
	c.pending = false
	if c.next == nil {
		start, end := c.rng.span()
		lo := c.store.key(start)
		hi := storeEnd(c.store.prefix)
		if end != nil {
			hi = c.store.key(end)
		}
		next, stop := iter.Pull2(c.store.tx.view().Iter(context.Background(), lo, hi))
		c.next = next
		c.store.tx.cursors = append(c.store.tx.cursors, stop)
	}

	e, err, ok := c.next()
	if !ok {
		c.exhausted = true
		return nil, nil
	}
	if err != nil {
		c.exhausted = true
		return nil, err
	}
	v, err := deserializeValue(e.V)
	if err != nil {
		c.exhausted = true
		return nil, err
	}
	c.key = e.K[len(c.store.prefix):]
	c.value = v
	return c, nil
}
