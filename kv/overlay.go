package kv

import (
	"bytes"
	"context"
	"iter"

	"github.com/huandu/skiplist"
)

type pending struct {
	value   []byte
	deleted bool
}

// overlay buffers uncommitted mutations in key order on top of a base view,
// for engines whose native batches cannot be read back.
type overlay struct {
	base Read
	ops  *skiplist.SkipList
}

func newOverlay(base Read) *overlay {
	return &overlay{base: base, ops: skiplist.New(skiplist.Bytes)}
}

func (o *overlay) put(key []byte, value []byte) {
	o.ops.Set(copyBytes(key), pending{value: copyBytes(value)})
}

func (o *overlay) del(key []byte) {
	o.ops.Set(copyBytes(key), pending{deleted: true})
}

func (o *overlay) len() int {
	return o.ops.Len()
}

func (o *overlay) get(ctx context.Context, key []byte) ([]byte, error) {
	if el := o.ops.Get(key); el != nil {
		p := el.Value.(pending)
		if p.deleted {
			return nil, ErrNotFound
		}
		return copyBytes(p.value), nil
	}
	return o.base.Get(ctx, key)
}

// each visits buffered mutations in key order.
func (o *overlay) each(fn func(key []byte, p pending) error) error {
	for el := o.ops.Front(); el != nil; el = el.Next() {
		if err := fn(el.Key().([]byte), el.Value.(pending)); err != nil {
			return err
		}
	}
	return nil
}

func (o *overlay) first(start []byte) *skiplist.Element {
	if start == nil {
		return o.ops.Front()
	}
	return o.ops.Find(start)
}

// iter merges the base range with the buffered mutations. A buffered entry
// shadows the base entry with the same key.
func (o *overlay) iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		next, stop := iter.Pull2(o.base.Iter(ctx, start, end))
		defer stop()

		bkv, berr, bok := next()
		el := o.first(start)

		for {
			if bok && berr != nil {
				yield(KeyAndValue{}, berr)
				return
			}

			var okey []byte
			if el != nil {
				okey = el.Key().([]byte)
				if end != nil && bytes.Compare(okey, end) >= 0 {
					el = nil
				}
			}

			if !bok && el == nil {
				return
			}

			if el == nil || (bok && bytes.Compare(bkv.K, okey) < 0) {
				if !yield(bkv, nil) {
					return
				}
				bkv, berr, bok = next()
				continue
			}

			if bok && bytes.Equal(bkv.K, okey) {
				bkv, berr, bok = next()
			}

			p := el.Value.(pending)
			el = el.Next()
			if p.deleted {
				continue
			}
			if !yield(KeyAndValue{K: copyBytes(okey), V: copyBytes(p.value)}, nil) {
				return
			}
		}
	}
}
